package state_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-inputmethod/layering"
	"github.com/goliatone/go-inputmethod/pkg/state"
)

func TestRefIdentifier(t *testing.T) {
	cases := []struct {
		name    string
		ref     state.Ref
		want    string
		wantErr bool
	}{
		{name: "system", ref: state.Ref{Domain: "toggles", Scope: layering.SystemScope()}, want: "system/toggles"},
		{name: "user", ref: state.Ref{Domain: "toggles", Scope: layering.UserScope("u1")}, want: "user/u1/toggles"},
		{
			name: "device",
			ref: state.Ref{Domain: "layouts", Scope: layering.NewScope("device", layering.ScopePriorityDevice,
				layering.WithMetadata(map[string]any{"device_id": "kbd-1"}))},
			want: "device/kbd-1/layouts",
		},
		{name: "user without id", ref: state.Ref{Domain: "toggles", Scope: layering.UserScope("")}, wantErr: true},
		{name: "unknown", ref: state.Ref{Domain: "toggles", Scope: layering.NewScope("team", 1)}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.ref.Identifier()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("identifier: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestResolverResolveLayersScopes(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore[map[string]int]()
	system := layering.SystemScope()
	user := layering.UserScope("u1")

	if _, err := store.Save(ctx, state.Ref{Domain: "toggles", Scope: system}, map[string]int{"a": 1, "b": 2}, state.Meta{SnapshotID: "snap-system"}); err != nil {
		t.Fatalf("save system: %v", err)
	}
	if _, err := store.Save(ctx, state.Ref{Domain: "toggles", Scope: user}, map[string]int{"a": 9}, state.Meta{SnapshotID: "snap-user"}); err != nil {
		t.Fatalf("save user: %v", err)
	}

	resolver := state.Resolver[map[string]int]{Store: store}
	merged, err := resolver.Resolve(ctx, "toggles", user, system)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if merged.Value["a"] != 9 || merged.Value["b"] != 2 {
		t.Fatalf("unexpected merged value %#v", merged.Value)
	}
	if len(merged.Layers) != 2 || merged.Layers[0].SnapshotID != "snap-user" {
		t.Fatalf("unexpected layers %#v", merged.Layers)
	}

	if _, err := resolver.Resolve(ctx, "missing", user); !errors.Is(err, state.ErrNoLayers) {
		t.Fatalf("expected no layers error, got %v", err)
	}
}

func TestResolverResolveWithDefaults(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore[map[string]int]()
	user := layering.UserScope("u1")
	if _, err := store.Save(ctx, state.Ref{Domain: "toggles", Scope: user}, map[string]int{"a": 0}, state.Meta{}); err != nil {
		t.Fatalf("save: %v", err)
	}

	resolver := state.Resolver[map[string]int]{Store: store}
	merged, err := resolver.ResolveWithDefaults(ctx, "toggles", map[string]int{"a": 5, "b": 7}, user, layering.SystemScope())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if merged.Value["a"] != 0 || merged.Value["b"] != 7 {
		t.Fatalf("unexpected merged value %#v", merged.Value)
	}
	last := merged.Layers[len(merged.Layers)-1]
	if last.Scope.Name != "defaults" || last.Scope.Priority >= layering.ScopePrioritySystem {
		t.Fatalf("expected defaults to be weakest, got %+v", last.Scope)
	}

	reserved := layering.NewScope("defaults", 10)
	if _, err := resolver.ResolveWithDefaults(ctx, "toggles", nil, reserved); err == nil {
		t.Fatalf("expected reserved scope error")
	}
}
