package layout

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	inputmethod "github.com/goliatone/go-inputmethod"
)

// keyboardMode is the subtype mode that applies to physical keyboards.
const keyboardMode = "keyboard"

// KeyboardEntry is one row of the physical keyboard screen: a device paired
// with an enabled method, optionally narrowed to one subtype.
type KeyboardEntry struct {
	Device     Device
	Method     inputmethod.InputMethodDescriptor
	Subtype    inputmethod.SubtypeDescriptor
	HasSubtype bool
	Selection  Selection
}

// PhysicalKeyboards lists every non-virtual full keyboard, sorted by device
// name collated for tag, with one entry per enabled method and keyboard-mode
// subtype. A method without subtypes contributes one entry of its own. When
// none of a method's subtypes are explicitly enabled, its keyboard subtypes
// that do not override implicit selection are used.
func PhysicalKeyboards(devices DeviceRegistry, catalog []inputmethod.InputMethodDescriptor, enabled inputmethod.EnablementState, resolver *Resolver, userID string, tag language.Tag) []KeyboardEntry {
	if devices == nil || resolver == nil {
		return nil
	}
	var keyboards []Device
	for _, device := range devices.Devices() {
		if !device.Virtual && device.FullKeyboard {
			keyboards = append(keyboards, device)
		}
	}
	collator := collate.New(tag)
	sort.SliceStable(keyboards, func(i, j int) bool {
		if c := collator.CompareString(keyboards[i].Name, keyboards[j].Name); c != 0 {
			return c < 0
		}
		return keyboards[i].Identifier < keyboards[j].Identifier
	})

	var entries []KeyboardEntry
	for _, device := range keyboards {
		for _, method := range catalog {
			if !enabled.EnabledMethodIDs.Has(method.ID) {
				continue
			}
			key := SelectionKey{Device: device.Identifier, UserID: userID, MethodID: method.ID}
			if len(method.Subtypes) == 0 {
				entries = append(entries, KeyboardEntry{
					Device:    device,
					Method:    method,
					Selection: resolver.Resolve(key, ""),
				})
				continue
			}
			for _, subtype := range keyboardSubtypes(method, enabled.EnabledSubtypeKeys(method.ID)) {
				key.SubtypeKey = subtype.Key
				entries = append(entries, KeyboardEntry{
					Device:     device,
					Method:     method,
					Subtype:    subtype,
					HasSubtype: true,
					Selection:  resolver.Resolve(key, subtype.Locale),
				})
			}
		}
	}
	return entries
}

func keyboardSubtypes(method inputmethod.InputMethodDescriptor, explicit inputmethod.IDSet) []inputmethod.SubtypeDescriptor {
	var out []inputmethod.SubtypeDescriptor
	for _, subtype := range method.Subtypes {
		if subtype.Mode == keyboardMode && explicit.Has(subtype.Key) {
			out = append(out, subtype)
		}
	}
	if explicit.Len() > 0 {
		return out
	}
	for _, subtype := range method.Subtypes {
		if subtype.Mode == keyboardMode && !subtype.OverridesImplicit {
			out = append(out, subtype)
		}
	}
	return out
}
