package inputmethod

import "errors"

// Persisted setting keys.
const (
	KeyEnabledMethods        = "enabled-methods"
	KeyDisabledSystemMethods = "disabled-system-methods"
	KeySelectedMethod        = "selected-method"
	KeySelectedSubtype       = "selected-subtype"
)

// EnablementState is the structured form of the persisted enablement strings.
type EnablementState struct {
	EnabledMethodIDs        IDSet
	EnabledSubtypes         map[string]IDSet
	SelectedMethodID        string
	SelectedSubtypeKey      string
	DisabledSystemMethodIDs IDSet
}

// EnabledSubtypeKeys returns the enabled subtype keys of methodID.
func (s EnablementState) EnabledSubtypeKeys(methodID string) IDSet {
	return s.EnabledSubtypes[methodID]
}

// Encode renders the state as persisted strings.
func (s EnablementState) Encode() EncodedState {
	return EncodedState{
		EnabledMethods:        EncodeEnabled(s.EnabledMethodIDs, s.EnabledSubtypes),
		DisabledSystemMethods: s.DisabledSystemMethodIDs.String(),
		SelectedMethod:        s.SelectedMethodID,
		SelectedSubtype:       s.SelectedSubtypeKey,
	}
}

// Validate checks the enablement invariants against catalog. Methods missing
// from catalog only fail the system-protection check, which needs to know
// whether a method is system-provided.
func (s EnablementState) Validate(catalog []InputMethodDescriptor) error {
	byID := make(map[string]InputMethodDescriptor, len(catalog))
	for _, method := range catalog {
		byID[method.ID] = method
	}

	if s.EnabledMethodIDs.Len() > 0 && !s.EnabledMethodIDs.Has(s.SelectedMethodID) {
		return &InvariantError{Invariant: InvariantSelectedEnabled, MethodID: s.SelectedMethodID, Detail: "selected method is not enabled"}
	}
	if s.EnabledMethodIDs.Len() == 0 && s.SelectedMethodID != "" {
		return &InvariantError{Invariant: InvariantSelectedEnabled, MethodID: s.SelectedMethodID, Detail: "selection without enabled methods"}
	}

	for _, id := range s.DisabledSystemMethodIDs.IDs() {
		if s.EnabledMethodIDs.Has(id) {
			return &InvariantError{Invariant: InvariantSystemProtection, MethodID: id, Detail: "disabled system method is also enabled"}
		}
		if method, ok := byID[id]; !ok || !method.SystemProvided {
			return &InvariantError{Invariant: InvariantSystemProtection, MethodID: id, Detail: "disabled method is not an installed system method"}
		}
	}

	for id := range s.EnabledSubtypes {
		if !s.EnabledMethodIDs.Has(id) {
			return &InvariantError{Invariant: InvariantSubtypeOwnership, MethodID: id, Detail: "subtypes enabled for a disabled method"}
		}
	}
	if s.SelectedSubtypeKey != "" && !s.EnabledSubtypes[s.SelectedMethodID].Has(s.SelectedSubtypeKey) {
		return &InvariantError{Invariant: InvariantSubtypeOwnership, MethodID: s.SelectedMethodID, Detail: "selected subtype is not enabled"}
	}
	return nil
}

// EncodedState holds the persisted strings. They are written together as
// one snapshot because the invariants span all of them.
type EncodedState struct {
	EnabledMethods        string `json:"enabled_methods,omitempty"`
	DisabledSystemMethods string `json:"disabled_system_methods,omitempty"`
	SelectedMethod        string `json:"selected_method,omitempty"`
	SelectedSubtype       string `json:"selected_subtype,omitempty"`
}

// Decode parses the persisted strings. Malformed tokens are dropped.
func (e EncodedState) Decode() EnablementState {
	methods, subtypes := DecodeEnabled(e.EnabledMethods)
	return EnablementState{
		EnabledMethodIDs:        methods,
		EnabledSubtypes:         subtypes,
		SelectedMethodID:        e.SelectedMethod,
		SelectedSubtypeKey:      e.SelectedSubtype,
		DisabledSystemMethodIDs: DecodeSet(e.DisabledSystemMethods),
	}
}

// Validate rejects snapshots whose strings contradict each other without a
// catalog at hand. It runs before every save.
func (e EncodedState) Validate() error {
	state := e.Decode()
	for _, id := range state.DisabledSystemMethodIDs.IDs() {
		if state.EnabledMethodIDs.Has(id) {
			return &InvariantError{Invariant: InvariantSystemProtection, MethodID: id, Detail: "disabled system method is also enabled"}
		}
	}
	if e.SelectedMethod != "" && !state.EnabledMethodIDs.Has(e.SelectedMethod) {
		return &InvariantError{Invariant: InvariantSelectedEnabled, MethodID: e.SelectedMethod, Detail: "selected method is not enabled"}
	}
	return nil
}

// Values returns the strings keyed by their persisted setting names.
func (e EncodedState) Values() map[string]string {
	return map[string]string{
		KeyEnabledMethods:        e.EnabledMethods,
		KeyDisabledSystemMethods: e.DisabledSystemMethods,
		KeySelectedMethod:        e.SelectedMethod,
		KeySelectedSubtype:       e.SelectedSubtype,
	}
}

// EncodedStateFromValues reads the strings from a key-value settings map.
// Missing keys read as empty.
func EncodedStateFromValues(values map[string]string) EncodedState {
	return EncodedState{
		EnabledMethods:        values[KeyEnabledMethods],
		DisabledSystemMethods: values[KeyDisabledSystemMethods],
		SelectedMethod:        values[KeySelectedMethod],
		SelectedSubtype:       values[KeySelectedSubtype],
	}
}

// IsInvariantViolation reports whether err came from an invariant check.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}
