package activity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNormalizeEventTrimsClonesAndDefaults(t *testing.T) {
	meta := map[string]any{"k": "v"}
	got := NormalizeEvent(Event{
		Verb:       " keyboard.layout.selected ",
		UserID:     " 0 ",
		ObjectType: " keyboard.layout ",
		ObjectID:   " kbd-1 ",
		Metadata:   meta,
	})

	if got.Verb != "keyboard.layout.selected" || got.ObjectType != "keyboard.layout" || got.ObjectID != "kbd-1" || got.UserID != "0" {
		t.Fatalf("unexpected normalized fields: %+v", got)
	}
	if got.OccurredAt.IsZero() {
		t.Fatalf("expected OccurredAt to be set")
	}
	got.Metadata["k"] = "changed"
	if meta["k"] != "v" {
		t.Fatalf("expected original metadata untouched: %+v", meta)
	}
}

func TestHooksNotifyFanOutAndJoinErrors(t *testing.T) {
	capture := &CaptureHook{}
	boom1 := errors.New("boom1")
	boom2 := errors.New("boom2")
	var ctxSeen bool
	hooks := Hooks{
		HookFunc(func(ctx context.Context, _ Event) error {
			ctxSeen = ctx != nil
			return nil
		}),
		capture,
		HookFunc(func(context.Context, Event) error { return boom1 }),
		nil,
		HookFunc(func(context.Context, Event) error { return boom2 }),
	}

	err := hooks.Notify(nil, Event{Verb: "v", ObjectType: "t", ObjectID: "1"})
	if !errors.Is(err, boom1) || !errors.Is(err, boom2) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !ctxSeen {
		t.Fatalf("expected context fallback to be non-nil")
	}
	if len(capture.Events()) != 1 {
		t.Fatalf("expected event captured once, got %d", len(capture.Events()))
	}

	if err := hooks.Notify(context.Background(), Event{Verb: "v"}); err != nil {
		t.Fatalf("expected incomplete event to be dropped, got %v", err)
	}
	if len(capture.Events()) != 1 {
		t.Fatalf("expected incomplete event not captured")
	}
}

func TestEmitterDisabledAndEnabled(t *testing.T) {
	capture := &CaptureHook{}
	event := Event{Verb: "v", ObjectType: "t", ObjectID: "1"}

	disabled := NewEmitter(Hooks{capture}, Config{Enabled: false})
	if disabled.Enabled() {
		t.Fatalf("expected emitter to be disabled")
	}
	if err := disabled.Emit(context.Background(), event); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	var nilEmitter *Emitter
	if err := nilEmitter.Emit(context.Background(), event); err != nil {
		t.Fatalf("nil emitter must be a no-op, got %v", err)
	}

	enabled := NewEmitter(Hooks{nil, capture}, Config{Enabled: true})
	if err := enabled.Emit(context.Background(), event); err != nil {
		t.Fatalf("emit: %v", err)
	}
	events := capture.Events()
	if len(events) != 1 || events[0].Channel != DefaultChannel {
		t.Fatalf("expected default channel applied, got %+v", events)
	}

	custom := NewEmitter(Hooks{capture}, Config{Enabled: true, Channel: "custom"})
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := custom.Emit(context.Background(), Event{Verb: "v", ObjectType: "t", ObjectID: "1", Channel: "explicit", OccurredAt: at}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	last := capture.Events()[1]
	if last.Channel != "explicit" || !last.OccurredAt.Equal(at) {
		t.Fatalf("expected explicit channel and timestamp preserved, got %+v", last)
	}
}

func TestEventBuilders(t *testing.T) {
	saved := BuildEnablementSavedEvent(EnablementInput{UserID: " 0 ", EnabledMethods: "a:b", SelectedMethod: "a", SnapshotID: "snap"})
	if saved.ObjectID != "0" || saved.Metadata["enabled_methods"] != "a:b" || saved.Metadata["snapshot_id"] != "snap" {
		t.Fatalf("unexpected enablement event %+v", saved)
	}
	if _, ok := saved.Metadata["selected_subtype"]; ok {
		t.Fatalf("empty subtype must be omitted")
	}

	cleared := BuildLayoutSelectedEvent(LayoutInput{Device: "kbd-1"})
	if cleared.Verb != VerbLayoutCleared {
		t.Fatalf("expected cleared verb, got %s", cleared.Verb)
	}

	refreshed := BuildCatalogRefreshedEvent(3, 2, time.Time{})
	if refreshed.Metadata["generation"] != uint64(3) || refreshed.ObjectID != ObjectCatalog {
		t.Fatalf("unexpected catalog event %+v", refreshed)
	}

	toggled := BuildToggleUpdatedEvent("u1", "autoclick_delay", 600, 0, time.Time{})
	if toggled.ObjectID != "autoclick_delay" || toggled.Metadata["new_value"] != 0 {
		t.Fatalf("unexpected toggle event %+v", toggled)
	}
}
