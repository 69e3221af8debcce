package inputmethod

import (
	"errors"
	"fmt"
)

var (
	ErrInvariantViolation = errors.New("inputmethod: invariant violation")
	ErrRegistryRequired   = errors.New("inputmethod: registry is required")
	ErrCatalogRequired    = errors.New("inputmethod: catalog is required")
	ErrStoreRequired      = errors.New("inputmethod: store is required")
	ErrUserRequired       = errors.New("inputmethod: user id is required")
)

// Invariant names one enablement invariant.
type Invariant string

const (
	InvariantSelectedEnabled  Invariant = "selected-enabled"
	InvariantSystemProtection Invariant = "system-protection"
	InvariantSubtypeOwnership Invariant = "subtype-ownership"
)

// InvariantError reports a reconciled state that breaks an invariant. It is
// a programming error, never a user-facing condition.
type InvariantError struct {
	Invariant Invariant
	MethodID  string
	Detail    string
}

func (e *InvariantError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.MethodID == "" {
		return fmt.Sprintf("inputmethod: invariant %s violated: %s", e.Invariant, e.Detail)
	}
	return fmt.Sprintf("inputmethod: invariant %s violated for %q: %s", e.Invariant, e.MethodID, e.Detail)
}

func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariantViolation
}
