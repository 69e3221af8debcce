package inputmethod

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// MethodEntry is one method row as presented in a list.
type MethodEntry struct {
	Method        InputMethodDescriptor
	Title         string
	AlwaysEnabled bool
}

// MethodEntries builds presentation rows for catalog, titled by label.
func MethodEntries(catalog []InputMethodDescriptor, hardwareKeyboard bool, rule AlwaysEnabledRule) []MethodEntry {
	entries := make([]MethodEntry, 0, len(catalog))
	for _, method := range catalog {
		entries = append(entries, MethodEntry{
			Method:        method,
			Title:         method.Label,
			AlwaysEnabled: AlwaysEnabled(method, len(catalog), hardwareKeyboard, rule),
		})
	}
	return entries
}

// SortMethods orders entries in place: system force-enabled methods first,
// then by title collated for tag, empty titles last. The sort is stable.
func SortMethods(entries []MethodEntry, tag language.Tag) {
	titles := newTitleOrder(tag)
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if pa, pb := a.pinned(), b.pinned(); pa != pb {
			return pa
		}
		return titles.less(a.Title, b.Title)
	})
}

func (e MethodEntry) pinned() bool {
	return e.Method.SystemProvided && e.AlwaysEnabled
}

// SortSubtypes orders subtypes in place: exact system locale first, then the
// system language, then by label collated for the UI locale.
func SortSubtypes(subtypes []SubtypeDescriptor, system, ui language.Tag) {
	titles := newTitleOrder(ui)
	systemBase, _ := system.Base()
	systemName := system.String()
	match := func(s SubtypeDescriptor) (exact, sameLanguage bool) {
		tag, ok := ParseLocale(s.Locale)
		if !ok {
			return false, false
		}
		base, _ := tag.Base()
		return tag.String() == systemName, base == systemBase
	}
	sort.SliceStable(subtypes, func(i, j int) bool {
		ea, la := match(subtypes[i])
		eb, lb := match(subtypes[j])
		if ea != eb {
			return ea
		}
		if la != lb {
			return la
		}
		return titles.less(subtypes[i].Label, subtypes[j].Label)
	})
}

// ParseLocale reads platform locale strings such as "en_US" or "pt-BR".
func ParseLocale(locale string) (language.Tag, bool) {
	locale = strings.TrimSpace(strings.ReplaceAll(locale, "_", "-"))
	if locale == "" {
		return language.Und, false
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return language.Und, false
	}
	return tag, true
}

type titleOrder struct {
	collator *collate.Collator
}

func newTitleOrder(tag language.Tag) titleOrder {
	return titleOrder{collator: collate.New(tag)}
}

// less collates a and b, sorting empty titles last. Titles the collator
// considers equal fall back to byte order so distinct titles never tie.
func (o titleOrder) less(a, b string) bool {
	if (a == "") != (b == "") {
		return a != ""
	}
	if c := o.collator.CompareString(a, b); c != 0 {
		return c < 0
	}
	return a < b
}
