package inputmethod

// AlwaysEnabledRule selects when a method is enabled regardless of toggles.
// Both rules apply only while no hardware keyboard is attached.
type AlwaysEnabledRule int

const (
	// RuleSystemWithoutHardwareKeyboard force-enables every system method,
	// and the sole installed method.
	RuleSystemWithoutHardwareKeyboard AlwaysEnabledRule = iota
	// RuleSoleMethod force-enables a method only when it is the only one
	// installed.
	RuleSoleMethod
)

func (r AlwaysEnabledRule) String() string {
	switch r {
	case RuleSoleMethod:
		return "sole-method"
	default:
		return "system-without-hardware-keyboard"
	}
}

// AlwaysEnabled reports whether rule force-enables method in a catalog of
// catalogSize methods.
func AlwaysEnabled(method InputMethodDescriptor, catalogSize int, hardwareKeyboard bool, rule AlwaysEnabledRule) bool {
	if hardwareKeyboard {
		return false
	}
	if catalogSize == 1 {
		return true
	}
	return rule == RuleSystemWithoutHardwareKeyboard && method.SystemProvided
}

// Toggles is the UI intent for one reconciliation. Absent entries keep the
// previously persisted membership.
type Toggles struct {
	Methods  map[string]bool
	Subtypes map[string]map[string]bool
	// LastToggled is the method the user most recently switched on. It
	// becomes the selection when the previous one is no longer enabled.
	LastToggled string
}

// ReconcileInput is everything Reconcile reads.
type ReconcileInput struct {
	Catalog          []InputMethodDescriptor
	Previous         EncodedState
	Toggles          Toggles
	HardwareKeyboard bool
	Rule             AlwaysEnabledRule
}

// ReconcileResult is the state to persist and its encoding.
type ReconcileResult struct {
	State   EnablementState
	Encoded EncodedState
	// Fallback is the method enabled only to keep at least one method
	// available; empty when none was needed.
	Fallback string
}

// Reconcile computes the enablement state to persist. It performs no I/O
// and never fails: uninstalled ids drop out and an empty catalog yields an
// empty state.
func Reconcile(in ReconcileInput) ReconcileResult {
	previous := in.Previous.Decode()
	methods := dedupe(in.Catalog)

	next := EnablementState{EnabledSubtypes: map[string]IDSet{}}
	for _, method := range methods {
		if isEnabled(method, previous, in, len(methods)) {
			next.EnabledMethodIDs.Add(method.ID)
		}
	}

	var fallback string
	if next.EnabledMethodIDs.Len() == 0 && !in.HardwareKeyboard && len(methods) > 0 {
		fallback = fallbackMethod(methods)
		next.EnabledMethodIDs.Add(fallback)
	}

	for _, method := range methods {
		if !next.EnabledMethodIDs.Has(method.ID) {
			continue
		}
		if keys := enabledSubtypes(method, previous, in.Toggles.Subtypes[method.ID]); keys.Len() > 0 {
			next.EnabledSubtypes[method.ID] = keys
		}
	}

	next.DisabledSystemMethodIDs = disabledSystem(methods, previous, next.EnabledMethodIDs, in.HardwareKeyboard)
	next.SelectedMethodID = selectMethod(next.EnabledMethodIDs, previous.SelectedMethodID, in.Toggles.LastToggled)
	if next.SelectedMethodID == previous.SelectedMethodID && next.EnabledSubtypes[next.SelectedMethodID].Has(previous.SelectedSubtypeKey) {
		next.SelectedSubtypeKey = previous.SelectedSubtypeKey
	}

	return ReconcileResult{State: next, Encoded: next.Encode(), Fallback: fallback}
}

func isEnabled(method InputMethodDescriptor, previous EnablementState, in ReconcileInput, catalogSize int) bool {
	if AlwaysEnabled(method, catalogSize, in.HardwareKeyboard, in.Rule) {
		return true
	}
	if on, ok := in.Toggles.Methods[method.ID]; ok {
		return on
	}
	return previous.EnabledMethodIDs.Has(method.ID)
}

func enabledSubtypes(method InputMethodDescriptor, previous EnablementState, toggles map[string]bool) IDSet {
	var keys IDSet
	prior := previous.EnabledSubtypes[method.ID]
	for _, subtype := range method.Subtypes {
		on, ok := toggles[subtype.Key]
		if !ok {
			on = prior.Has(subtype.Key)
		}
		if on {
			keys.Add(subtype.Key)
		}
	}
	return keys
}

// disabledSystem keeps earlier entries that are still installed, system and
// not enabled, then adds system methods left disabled while a hardware
// keyboard is attached.
func disabledSystem(methods []InputMethodDescriptor, previous EnablementState, enabled IDSet, hardwareKeyboard bool) IDSet {
	system := make(map[string]bool, len(methods))
	for _, method := range methods {
		system[method.ID] = method.SystemProvided
	}

	var out IDSet
	for _, id := range previous.DisabledSystemMethodIDs.IDs() {
		if system[id] && !enabled.Has(id) {
			out.Add(id)
		}
	}
	if hardwareKeyboard {
		for _, method := range methods {
			if method.SystemProvided && !enabled.Has(method.ID) {
				out.Add(method.ID)
			}
		}
	}
	return out
}

func selectMethod(enabled IDSet, previous, lastToggled string) string {
	switch {
	case enabled.Has(previous):
		return previous
	case enabled.Has(lastToggled):
		return lastToggled
	}
	first, _ := enabled.First()
	return first
}

func fallbackMethod(methods []InputMethodDescriptor) string {
	for _, method := range methods {
		if method.SystemProvided {
			return method.ID
		}
	}
	return methods[0].ID
}

// dedupe drops empty and repeated ids and derives missing subtype keys, so
// Reconcile accepts raw registry output as well as catalog snapshots.
func dedupe(catalog []InputMethodDescriptor) []InputMethodDescriptor {
	out := make([]InputMethodDescriptor, 0, len(catalog))
	seen := make(map[string]struct{}, len(catalog))
	for _, method := range catalog {
		if method.ID == "" {
			continue
		}
		if _, ok := seen[method.ID]; ok {
			continue
		}
		seen[method.ID] = struct{}{}
		out = append(out, normalizeDescriptor(method))
	}
	return out
}
