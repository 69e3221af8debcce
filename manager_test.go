package inputmethod

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-inputmethod/pkg/activity"
	"github.com/goliatone/go-inputmethod/pkg/state"
)

func newTestManager(t *testing.T, capture *activity.CaptureHook, methods ...InputMethodDescriptor) (*Manager, *state.MemoryStore[EncodedState]) {
	t.Helper()
	catalog := NewCatalog(staticRegistry(methods...))
	if err := catalog.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	store := state.NewMemoryStore[EncodedState]()
	ids := 0
	manager, err := NewManager(catalog, store,
		WithManagerActivity(activity.NewEmitter(activity.Hooks{capture}, activity.Config{Enabled: true})),
		WithManagerClock(func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) }),
		WithSnapshotIDs(func() string { ids++; return "snap-" + string(rune('0'+ids)) }),
	)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return manager, store
}

func TestManagerApplyPersistsAndEmits(t *testing.T) {
	capture := &activity.CaptureHook{}
	manager, store := newTestManager(t, capture, method("latin", true, "1"), method("voice", false))
	ctx := context.Background()

	loaded, err := manager.Load(ctx, "u1")
	if err != nil || loaded.Found || loaded.State.EnabledMethodIDs.Len() != 0 {
		t.Fatalf("expected empty state for new user, got %+v %v", loaded, err)
	}

	applied, err := manager.Apply(ctx, ApplyRequest{
		UserID:  "u1",
		Toggles: Toggles{Methods: map[string]bool{"voice": true}, Subtypes: map[string]map[string]bool{"latin": {"1": true}}},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	want := EncodedState{EnabledMethods: "latin;1:voice", SelectedMethod: "latin"}
	if applied.Result.Encoded != want {
		t.Fatalf("expected %+v, got %+v", want, applied.Result.Encoded)
	}
	if applied.Meta.SnapshotID != "snap-1" || applied.Meta.ETag == "" {
		t.Fatalf("unexpected meta %+v", applied.Meta)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one stored snapshot, got %d", store.Len())
	}

	loaded, err = manager.Load(ctx, "u1")
	if err != nil || !loaded.Found || loaded.Encoded != want || loaded.Meta.ETag != applied.Meta.ETag {
		t.Fatalf("expected stored snapshot, got %+v %v", loaded, err)
	}
	if !loaded.State.EnabledSubtypeKeys("latin").Has("1") {
		t.Fatalf("expected decoded subtypes, got %+v", loaded.State)
	}

	events := capture.Events()
	if len(events) != 1 || events[0].Verb != activity.VerbEnablementSaved || events[0].Metadata["enabled_methods"] != "latin;1:voice" {
		t.Fatalf("unexpected activity %+v", events)
	}
}

func TestManagerApplyRejectsStaleETag(t *testing.T) {
	manager, _ := newTestManager(t, &activity.CaptureHook{}, method("latin", true), method("voice", false))
	ctx := context.Background()

	first, err := manager.Apply(ctx, ApplyRequest{UserID: "u1"})
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := manager.Apply(ctx, ApplyRequest{UserID: "u1", ETag: first.Meta.ETag, Toggles: Toggles{Methods: map[string]bool{"voice": true}}}); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	_, err = manager.Apply(ctx, ApplyRequest{UserID: "u1", ETag: first.Meta.ETag})
	if !errors.Is(err, state.ErrETagMismatch) {
		t.Fatalf("expected ErrETagMismatch, got %v", err)
	}
}

func TestManagerRequiresCollaborators(t *testing.T) {
	if _, err := NewManager(nil, state.NewMemoryStore[EncodedState]()); !errors.Is(err, ErrCatalogRequired) {
		t.Fatalf("expected ErrCatalogRequired, got %v", err)
	}
	if _, err := NewManager(NewCatalog(nil), nil); !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}
	manager, _ := newTestManager(t, &activity.CaptureHook{})
	if _, err := manager.Apply(context.Background(), ApplyRequest{UserID: " "}); !errors.Is(err, ErrUserRequired) {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}
}

func TestManagerReportsEmitFailureAfterSave(t *testing.T) {
	boom := errors.New("sink down")
	manager, store := newTestManager(t, &activity.CaptureHook{Err: boom}, method("latin", true))

	applied, err := manager.Apply(context.Background(), ApplyRequest{UserID: "u1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected emit failure, got %v", err)
	}
	if applied.Result.Encoded.EnabledMethods != "latin" || store.Len() != 1 {
		t.Fatalf("expected save to be committed, got %+v", applied)
	}
}

func TestEncodedStateValidateRejectsContradictions(t *testing.T) {
	store := state.NewMemoryStore[EncodedState]()
	resolver := state.Resolver[EncodedState]{Store: store}
	ref, _ := enablementRef("u1")
	_, _, err := resolver.Mutate(context.Background(), ref, state.Meta{}, func(s *EncodedState) error {
		*s = EncodedState{EnabledMethods: "a", DisabledSystemMethods: "a", SelectedMethod: "a"}
		return nil
	})
	if !IsInvariantViolation(err) || store.Len() != 0 {
		t.Fatalf("expected invariant violation before save, got %v", err)
	}
}
