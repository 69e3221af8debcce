package inputmethod

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// SubtypeDescriptor is one locale or mode variant of an input method.
type SubtypeDescriptor struct {
	Key    string `json:"key,omitempty"`
	Locale string `json:"locale,omitempty"`
	Mode   string `json:"mode,omitempty"`
	Label  string `json:"label,omitempty"`
	// OverridesImplicit marks an auxiliary subtype that replaces the
	// implicitly enabled ones when explicitly enabled.
	OverridesImplicit bool `json:"overrides_implicit,omitempty"`
}

// InputMethodDescriptor is an immutable description of an installed input
// method as reported by the platform registry.
type InputMethodDescriptor struct {
	ID                string              `json:"id"`
	PackageOwner      string              `json:"package_owner,omitempty"`
	SystemProvided    bool                `json:"system_provided,omitempty"`
	Subtypes          []SubtypeDescriptor `json:"subtypes,omitempty"`
	HasSettingsScreen bool                `json:"has_settings_screen,omitempty"`
	Label             string              `json:"label,omitempty"`
}

// Clone returns a copy that shares no slices with d.
func (d InputMethodDescriptor) Clone() InputMethodDescriptor {
	out := d
	if d.Subtypes != nil {
		out.Subtypes = append([]SubtypeDescriptor(nil), d.Subtypes...)
	}
	return out
}

// Subtype returns the subtype with key.
func (d InputMethodDescriptor) Subtype(key string) (SubtypeDescriptor, bool) {
	for _, subtype := range d.Subtypes {
		if subtype.Key == key {
			return subtype, true
		}
	}
	return SubtypeDescriptor{}, false
}

// SubtypeKeys returns the subtype keys in declaration order.
func (d InputMethodDescriptor) SubtypeKeys() []string {
	keys := make([]string, 0, len(d.Subtypes))
	for _, subtype := range d.Subtypes {
		keys = append(keys, subtype.Key)
	}
	return keys
}

// SubtypeKey derives a stable key for subtype from the owning method id and
// the subtype's locale and mode. The key is decimal so it never collides
// with the persisted-format delimiters.
func SubtypeKey(methodID string, subtype SubtypeDescriptor) string {
	digest := xxhash.New()
	_, _ = digest.WriteString(methodID)
	_, _ = digest.Write([]byte{0})
	_, _ = digest.WriteString(subtype.Locale)
	_, _ = digest.Write([]byte{0})
	_, _ = digest.WriteString(subtype.Mode)
	return strconv.FormatUint(digest.Sum64(), 10)
}

// normalizeDescriptor fills derived subtype keys and drops duplicate
// subtypes, keeping the first occurrence.
func normalizeDescriptor(d InputMethodDescriptor) InputMethodDescriptor {
	out := d.Clone()
	if len(out.Subtypes) == 0 {
		return out
	}
	seen := make(map[string]struct{}, len(out.Subtypes))
	subtypes := out.Subtypes[:0]
	for _, subtype := range out.Subtypes {
		if subtype.Key == "" {
			subtype.Key = SubtypeKey(out.ID, subtype)
		}
		if _, dup := seen[subtype.Key]; dup {
			continue
		}
		seen[subtype.Key] = struct{}{}
		subtypes = append(subtypes, subtype)
	}
	out.Subtypes = subtypes
	return out
}
