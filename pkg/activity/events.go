package activity

import (
	"strings"
	"time"
)

const (
	VerbEnablementSaved  = "inputmethod.enablement.saved"
	VerbCatalogRefreshed = "inputmethod.catalog.refreshed"
	VerbLayoutSelected   = "keyboard.layout.selected"
	VerbLayoutCleared    = "keyboard.layout.cleared"
	VerbToggleUpdated    = "accessibility.toggle.updated"
	ObjectEnablement     = "inputmethod.enablement"
	ObjectCatalog        = "inputmethod.catalog"
	ObjectKeyboardLayout = "keyboard.layout"
	ObjectToggle         = "accessibility.toggle"
)

// EnablementInput carries the result of one enablement save.
type EnablementInput struct {
	ActorID          string
	UserID           string
	SnapshotID       string
	EnabledMethods   string
	DisabledSystem   string
	SelectedMethod   string
	SelectedSubtype  string
	HardwareKeyboard bool
	OccurredAt       time.Time
}

// BuildEnablementSavedEvent describes a persisted enablement snapshot. The
// object id is the user the snapshot belongs to.
func BuildEnablementSavedEvent(input EnablementInput) Event {
	meta := map[string]any{
		"enabled_methods":         input.EnabledMethods,
		"disabled_system_methods": input.DisabledSystem,
		"selected_method":         input.SelectedMethod,
		"hardware_keyboard":       input.HardwareKeyboard,
	}
	if input.SelectedSubtype != "" {
		meta["selected_subtype"] = input.SelectedSubtype
	}
	if input.SnapshotID != "" {
		meta["snapshot_id"] = input.SnapshotID
	}
	return Event{
		Verb:       VerbEnablementSaved,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		ObjectType: ObjectEnablement,
		ObjectID:   firstNonEmpty(input.UserID, input.SnapshotID, ObjectEnablement),
		Metadata:   meta,
		OccurredAt: input.OccurredAt,
	}
}

// BuildCatalogRefreshedEvent describes a catalog snapshot swap.
func BuildCatalogRefreshedEvent(generation uint64, methods int, occurredAt time.Time) Event {
	return Event{
		Verb:       VerbCatalogRefreshed,
		ObjectType: ObjectCatalog,
		ObjectID:   ObjectCatalog,
		Metadata: map[string]any{
			"generation": generation,
			"methods":    methods,
		},
		OccurredAt: occurredAt,
	}
}

// LayoutInput carries one keyboard layout choice.
type LayoutInput struct {
	ActorID    string
	UserID     string
	Device     string
	MethodID   string
	SubtypeKey string
	Layout     string
	OccurredAt time.Time
}

// BuildLayoutSelectedEvent describes an explicit user layout pick. An empty
// Layout is reported as a cleared selection.
func BuildLayoutSelectedEvent(input LayoutInput) Event {
	verb := VerbLayoutSelected
	if strings.TrimSpace(input.Layout) == "" {
		verb = VerbLayoutCleared
	}
	meta := map[string]any{
		"device":    input.Device,
		"method_id": input.MethodID,
	}
	if input.SubtypeKey != "" {
		meta["subtype_key"] = input.SubtypeKey
	}
	if input.Layout != "" {
		meta["layout"] = input.Layout
	}
	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		ObjectType: ObjectKeyboardLayout,
		ObjectID:   firstNonEmpty(input.Device, ObjectKeyboardLayout),
		Metadata:   meta,
		OccurredAt: input.OccurredAt,
	}
}

// BuildToggleUpdatedEvent describes an accessibility setting change.
func BuildToggleUpdatedEvent(userID, key string, oldValue, newValue int, occurredAt time.Time) Event {
	return Event{
		Verb:       VerbToggleUpdated,
		UserID:     strings.TrimSpace(userID),
		ObjectType: ObjectToggle,
		ObjectID:   firstNonEmpty(key, ObjectToggle),
		Metadata: map[string]any{
			"old_value": oldValue,
			"new_value": newValue,
		},
		OccurredAt: occurredAt,
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	return ""
}
