package layering

import (
	"errors"
	"fmt"
	"sort"
)

const (
	// Priorities for the scopes settings are persisted under. Higher wins.
	ScopePriorityDefaults = 0
	ScopePrioritySystem   = 100
	ScopePriorityDevice   = 300
	ScopePriorityUser     = 500
)

// Scope is a named precedence bucket. Higher priority values are stronger.
type Scope struct {
	Name     string
	Label    string
	Priority int
	Metadata map[string]any
}

// ScopeOption configures a Scope at construction time.
type ScopeOption func(*Scope)

// WithLabel sets a human-friendly label on the scope.
func WithLabel(label string) ScopeOption {
	return func(s *Scope) {
		s.Label = label
	}
}

// WithMetadata attaches metadata to the scope. The map is copied.
func WithMetadata(metadata map[string]any) ScopeOption {
	return func(s *Scope) {
		s.Metadata = copyMetadata(metadata)
	}
}

// NewScope builds a Scope. Validation happens when a Stack is assembled.
func NewScope(name string, priority int, opts ...ScopeOption) Scope {
	scope := Scope{Name: name, Priority: priority}
	for _, opt := range opts {
		if opt != nil {
			opt(&scope)
		}
	}
	return scope
}

// SystemScope is the device-wide scope shared by all users.
func SystemScope() Scope {
	return NewScope("system", ScopePrioritySystem, WithLabel("System"))
}

// UserScope is the per-user scope keyed by the "user_id" metadata entry.
func UserScope(userID string) Scope {
	return NewScope("user", ScopePriorityUser,
		WithLabel("User"),
		WithMetadata(map[string]any{"user_id": userID}),
	)
}

// Clone returns a copy of s with detached metadata.
func (s Scope) Clone() Scope {
	out := s
	out.Metadata = copyMetadata(s.Metadata)
	return out
}

// IsZero reports whether no field of the scope is set.
func (s Scope) IsZero() bool {
	return s.Name == "" && s.Label == "" && s.Priority == 0 && len(s.Metadata) == 0
}

// Layer pairs a scope with the snapshot captured for it.
type Layer[T any] struct {
	Scope      Scope
	Snapshot   T
	SnapshotID string
}

// NewLayer deep-copies scope and snapshot into a Layer.
func NewLayer[T any](scope Scope, snapshot T, snapshotID string) Layer[T] {
	return Layer[T]{
		Scope:      scope.Clone(),
		Snapshot:   Clone(snapshot),
		SnapshotID: snapshotID,
	}
}

func (l Layer[T]) clone() Layer[T] {
	return NewLayer(l.Scope, l.Snapshot, l.SnapshotID)
}

var (
	// ErrScopeNameRequired indicates a layer without a scope name.
	ErrScopeNameRequired = errors.New("layering: scope name must be provided")
	// ErrDuplicateScopeName indicates two layers share a scope name.
	ErrDuplicateScopeName = errors.New("layering: scope names must be unique")
	// ErrPriorityOrder indicates two layers share a priority.
	ErrPriorityOrder = errors.New("layering: priorities must be strictly ordered")
	// ErrEmptyStack is returned when merging a stack without layers.
	ErrEmptyStack = errors.New("layering: stack must include at least one layer")
)

// Stack is an immutable set of layers ordered strongest first.
type Stack[T any] struct {
	layers []Layer[T]
}

// NewStack validates the layers and sorts them strongest first.
func NewStack[T any](layers ...Layer[T]) (*Stack[T], error) {
	seen := make(map[string]struct{}, len(layers))
	ordered := make([]Layer[T], 0, len(layers))
	for _, layer := range layers {
		if layer.Scope.Name == "" {
			return nil, ErrScopeNameRequired
		}
		if _, dup := seen[layer.Scope.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateScopeName, layer.Scope.Name)
		}
		seen[layer.Scope.Name] = struct{}{}
		ordered = append(ordered, layer.clone())
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Scope.Priority > ordered[j].Scope.Priority
	})
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].Scope.Priority == ordered[i].Scope.Priority {
			return nil, fmt.Errorf("%w: %d", ErrPriorityOrder, ordered[i].Scope.Priority)
		}
	}
	return &Stack[T]{layers: ordered}, nil
}

// Layers returns copies of the layers, strongest first.
func (s *Stack[T]) Layers() []Layer[T] {
	if s == nil || len(s.layers) == 0 {
		return nil
	}
	out := make([]Layer[T], len(s.layers))
	for i, layer := range s.layers {
		out[i] = layer.clone()
	}
	return out
}

// Len returns the number of layers.
func (s *Stack[T]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.layers)
}

// Provenance records one layer that contributed to a merged value.
type Provenance struct {
	Scope      Scope  `json:"scope"`
	SnapshotID string `json:"snapshot_id,omitempty"`
}

// Merged is the effective value of a stack plus the layers behind it.
type Merged[T any] struct {
	Value  T
	Layers []Provenance
}

// Merge folds the stack into a single value.
func (s *Stack[T]) Merge() (*Merged[T], error) {
	if s.Len() == 0 {
		return nil, ErrEmptyStack
	}
	snapshots := make([]T, len(s.layers))
	provenance := make([]Provenance, len(s.layers))
	for i, layer := range s.layers {
		snapshots[i] = layer.Snapshot
		provenance[i] = Provenance{Scope: layer.Scope.Clone(), SnapshotID: layer.SnapshotID}
	}
	return &Merged[T]{Value: MergeLayers(snapshots...), Layers: provenance}, nil
}

func copyMetadata(origin map[string]any) map[string]any {
	if len(origin) == 0 {
		return nil
	}
	out := make(map[string]any, len(origin))
	for key, value := range origin {
		out[key] = value
	}
	return out
}
