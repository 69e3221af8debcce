package inputmethod

import "strings"

const (
	// SetSeparator joins identifiers in persisted sets.
	SetSeparator = ":"
	// SubtypeSeparator joins a method id to its enabled subtype keys.
	SubtypeSeparator = ";"
)

// DecodeSet splits raw on SetSeparator. Empty input yields an empty set;
// empty tokens from doubled delimiters are skipped and duplicates collapse.
func DecodeSet(raw string) IDSet {
	var set IDSet
	if raw == "" {
		return set
	}
	for _, token := range strings.Split(raw, SetSeparator) {
		set.Add(token)
	}
	return set
}

// EncodeSet joins ids in the given order. Empty ids are skipped.
func EncodeSet(ids []string) string {
	var b strings.Builder
	for _, id := range ids {
		if id == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(SetSeparator)
		}
		b.WriteString(id)
	}
	return b.String()
}

// DecodeEnabled parses the enabled-methods value `ime0;sub0;sub1:ime1`. A
// method listed more than once accumulates the subtypes of every entry.
func DecodeEnabled(raw string) (IDSet, map[string]IDSet) {
	var methods IDSet
	subtypes := map[string]IDSet{}
	if raw == "" {
		return methods, subtypes
	}
	for _, token := range strings.Split(raw, SetSeparator) {
		parts := strings.Split(token, SubtypeSeparator)
		id := parts[0]
		if id == "" {
			continue
		}
		methods.Add(id)
		if len(parts) == 1 {
			continue
		}
		keys := subtypes[id]
		for _, key := range parts[1:] {
			keys.Add(key)
		}
		if keys.Len() > 0 {
			subtypes[id] = keys
		}
	}
	return methods, subtypes
}

// EncodeEnabled is the inverse of DecodeEnabled. Subtypes of methods that
// are not in methods are ignored.
func EncodeEnabled(methods IDSet, subtypes map[string]IDSet) string {
	var b strings.Builder
	for _, id := range methods.IDs() {
		if b.Len() > 0 {
			b.WriteString(SetSeparator)
		}
		b.WriteString(id)
		for _, key := range subtypes[id].IDs() {
			b.WriteString(SubtypeSeparator)
			b.WriteString(key)
		}
	}
	return b.String()
}
