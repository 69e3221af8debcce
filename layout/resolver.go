package layout

import (
	"fmt"
	"sort"

	"golang.org/x/text/language"

	inputmethod "github.com/goliatone/go-inputmethod"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithChain replaces the default criteria chain.
func WithChain(chain Chain) Option {
	return func(r *Resolver) {
		r.chain = NewChain(chain...)
	}
}

// Resolver picks the layout in effect for a SelectionKey. It holds no
// mutable state and is safe for concurrent use when its collaborators are.
type Resolver struct {
	devices  DeviceRegistry
	choices  UserChoices
	fallback KeyboardLayout
	chain    Chain
}

// NewResolver returns a resolver that falls back to fallback, the built-in
// virtual keyboard layout. Nil devices or choices behave as empty.
func NewResolver(devices DeviceRegistry, choices UserChoices, fallback KeyboardLayout, opts ...Option) *Resolver {
	r := &Resolver{devices: devices, choices: choices, fallback: fallback, chain: DefaultChain()}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve returns the strongest available candidate. It never fails: an
// unknown device resolves to the virtual keyboard default.
func (r *Resolver) Resolve(key SelectionKey, subtypeLocale string) Selection {
	return r.Explain(key, subtypeLocale).Selected
}

// Explain evaluates every criteria in the chain and reports each outcome
// alongside the winning selection.
func (r *Resolver) Explain(key SelectionKey, subtypeLocale string) Trace {
	device, found := r.device(key.Device)
	trace := Trace{Key: key, Locale: subtypeLocale, DeviceFound: found}
	for _, criteria := range r.chain {
		step := TraceStep{Criteria: criteria}
		switch criteria {
		case UserChosen:
			step.Layout, step.Found, step.Detail = r.userChoice(device, found, key)
		case DeviceDefault:
			step.Layout, step.Found, step.Detail = deviceDefault(device, found, subtypeLocale)
		case VirtualKeyboardDefault:
			step.Layout, step.Found = r.fallback, true
		}
		if step.Found && trace.Selected.Criteria == 0 {
			trace.Selected = Selection{Key: key, Layout: step.Layout, Criteria: criteria}
		}
		trace.Steps = append(trace.Steps, step)
	}
	return trace
}

// ListCandidates returns the device's layouts sorted ordinally by label,
// then descriptor. An unknown device has no candidates.
func (r *Resolver) ListCandidates(key SelectionKey) []KeyboardLayout {
	device, ok := r.device(key.Device)
	if !ok || len(device.Layouts) == 0 {
		return nil
	}
	out := append([]KeyboardLayout(nil), device.Layouts...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].Descriptor < out[j].Descriptor
	})
	return out
}

func (r *Resolver) device(identifier string) (Device, bool) {
	if r.devices == nil || identifier == "" {
		return Device{}, false
	}
	return r.devices.Device(identifier)
}

// userChoice accepts a stored pick only while the device still offers it.
func (r *Resolver) userChoice(device Device, found bool, key SelectionKey) (KeyboardLayout, bool, string) {
	if r.choices == nil {
		return KeyboardLayout{}, false, "no user choices"
	}
	if !found {
		return KeyboardLayout{}, false, "device not found"
	}
	descriptor, ok := r.choices.Choice(key)
	if !ok || descriptor == "" {
		return KeyboardLayout{}, false, "no pick stored"
	}
	layout, ok := device.Layout(descriptor)
	if !ok {
		return KeyboardLayout{}, false, fmt.Sprintf("stored pick %q not offered by device", descriptor)
	}
	return layout, true, ""
}

// deviceDefault prefers an exact locale match, then the closest language
// match, then a locale-agnostic default.
func deviceDefault(device Device, found bool, locale string) (KeyboardLayout, bool, string) {
	if !found {
		return KeyboardLayout{}, false, "device not found"
	}
	if len(device.Defaults) == 0 {
		return KeyboardLayout{}, false, "device declares no defaults"
	}

	want, wantOK := inputmethod.ParseLocale(locale)
	var tags []language.Tag
	var tagged []DefaultLayout
	var anyLocale *DefaultLayout
	for i, candidate := range device.Defaults {
		if candidate.Locale == "" {
			if anyLocale == nil {
				anyLocale = &device.Defaults[i]
			}
			continue
		}
		tag, ok := inputmethod.ParseLocale(candidate.Locale)
		if !ok {
			continue
		}
		if wantOK && tag.String() == want.String() {
			return candidate.Layout, true, "exact locale " + tag.String()
		}
		tags = append(tags, tag)
		tagged = append(tagged, candidate)
	}

	if wantOK && len(tags) > 0 {
		_, index, confidence := language.NewMatcher(tags).Match(want)
		if confidence >= language.High {
			return tagged[index].Layout, true, fmt.Sprintf("language match %s (%s)", tags[index], confidence)
		}
	}
	if anyLocale != nil {
		return anyLocale.Layout, true, "locale-agnostic default"
	}
	return KeyboardLayout{}, false, "no default for locale"
}
