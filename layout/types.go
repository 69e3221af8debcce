// Package layout decides which keyboard layout applies to a physical
// keyboard for a given user, input method and subtype.
package layout

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Criteria is the reason a layout is in effect. Stronger criteria have higher
// priority.
type Criteria int

const (
	VirtualKeyboardDefault Criteria = iota + 1
	DeviceDefault
	UserChosen
)

var criteriaNames = map[Criteria]string{
	VirtualKeyboardDefault: "virtual-keyboard-default",
	DeviceDefault:          "device-default",
	UserChosen:             "user-chosen",
}

func (c Criteria) String() string {
	if name, ok := criteriaNames[c]; ok {
		return name
	}
	return fmt.Sprintf("criteria(%d)", int(c))
}

// Priority orders criteria; the strongest wins.
func (c Criteria) Priority() int {
	return int(c) * 100
}

func (c Criteria) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Criteria) UnmarshalText(text []byte) error {
	for criteria, name := range criteriaNames {
		if name == string(text) {
			*c = criteria
			return nil
		}
	}
	return fmt.Errorf("layout: unknown criteria %q", text)
}

// Chain lists criteria strongest first.
type Chain []Criteria

// DefaultChain is UserChosen, DeviceDefault, VirtualKeyboardDefault.
func DefaultChain() Chain {
	return Chain{UserChosen, DeviceDefault, VirtualKeyboardDefault}
}

// NewChain orders criteria strongest first, drops duplicates and always ends
// with VirtualKeyboardDefault so resolution can never come up empty.
func NewChain(criteria ...Criteria) Chain {
	seen := map[Criteria]struct{}{}
	out := make(Chain, 0, len(criteria)+1)
	all := append(append(Chain(nil), criteria...), VirtualKeyboardDefault)
	for _, c := range all {
		if _, ok := criteriaNames[c]; !ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() > out[j].Priority()
	})
	return out
}

// SelectionKey identifies one layout assignment.
type SelectionKey struct {
	Device     string `json:"device"`
	UserID     string `json:"user_id"`
	MethodID   string `json:"method_id"`
	SubtypeKey string `json:"subtype_key,omitempty"`
}

// String renders the key as a single storage token. Each field is
// path-escaped so ids containing the separator survive a round trip.
func (k SelectionKey) String() string {
	return strings.Join([]string{url.PathEscape(k.Device), url.PathEscape(k.MethodID), url.PathEscape(k.SubtypeKey)}, "|")
}

// KeyboardLayout is a key-to-character mapping assignable to a device.
type KeyboardLayout struct {
	Descriptor string `json:"descriptor"`
	Label      string `json:"label,omitempty"`
}

func (l KeyboardLayout) IsZero() bool {
	return l.Descriptor == ""
}

// Selection is the resolved layout for a key.
type Selection struct {
	Key      SelectionKey   `json:"key"`
	Layout   KeyboardLayout `json:"layout"`
	Criteria Criteria       `json:"criteria"`
}

// DefaultLayout is a device-declared default. An empty Locale applies to
// every locale and loses to any locale match.
type DefaultLayout struct {
	Locale string
	Layout KeyboardLayout
}

// Device is a keyboard as reported by the device registry.
type Device struct {
	Identifier   string
	Name         string
	Virtual      bool
	FullKeyboard bool
	Layouts      []KeyboardLayout
	Defaults     []DefaultLayout
}

// Layout returns the device layout with descriptor.
func (d Device) Layout(descriptor string) (KeyboardLayout, bool) {
	for _, layout := range d.Layouts {
		if layout.Descriptor == descriptor {
			return layout, true
		}
	}
	return KeyboardLayout{}, false
}

// DeviceRegistry supplies device identity and candidate layouts. Devices may
// disappear at any time; a missing device is reported with false.
type DeviceRegistry interface {
	Device(identifier string) (Device, bool)
	Devices() []Device
}

// UserChoices reports explicit user picks by key.
type UserChoices interface {
	Choice(key SelectionKey) (descriptor string, ok bool)
}

// Trace records how each criteria in the chain was evaluated.
type Trace struct {
	Key         SelectionKey `json:"key"`
	Locale      string       `json:"locale,omitempty"`
	DeviceFound bool         `json:"device_found"`
	Steps       []TraceStep  `json:"steps"`
	Selected    Selection    `json:"selected"`
}

// TraceStep is the outcome of one criteria lookup.
type TraceStep struct {
	Criteria Criteria       `json:"criteria"`
	Layout   KeyboardLayout `json:"layout,omitempty"`
	Found    bool           `json:"found"`
	Detail   string         `json:"detail,omitempty"`
}

func (t Trace) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

func TraceFromJSON(payload []byte) (Trace, error) {
	var trace Trace
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return trace, nil
}

// DeviceList is a fixed DeviceRegistry.
type DeviceList []Device

func (l DeviceList) Device(identifier string) (Device, bool) {
	for _, device := range l {
		if device.Identifier == identifier {
			return device, true
		}
	}
	return Device{}, false
}

func (l DeviceList) Devices() []Device {
	return append([]Device(nil), l...)
}
