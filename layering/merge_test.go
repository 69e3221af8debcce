package layering

import (
	"reflect"
	"testing"
)

type toggleValues struct {
	Values  map[string]int
	Labels  []string
	Enabled *bool
}

func boolPtr(v bool) *bool {
	return &v
}

func TestMergeLayersMapsMergeByKey(t *testing.T) {
	user := map[string]int{"autoclick_delay": 0}
	system := map[string]int{"autoclick_delay": 600, "magnification_scale": 2}

	got := MergeLayers(user, system)
	want := map[string]int{"autoclick_delay": 0, "magnification_scale": 2}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("merged map mismatch:\nwant: %#v\n got: %#v", want, got)
	}
}

func TestMergeLayersNilFallsThrough(t *testing.T) {
	strong := toggleValues{Values: map[string]int{"a": 1}}
	weak := toggleValues{
		Values:  map[string]int{"b": 2},
		Labels:  []string{"weak"},
		Enabled: boolPtr(true),
	}

	got := MergeLayers(strong, weak)
	if got.Values["a"] != 1 || got.Values["b"] != 2 {
		t.Fatalf("expected both keys, got %#v", got.Values)
	}
	if len(got.Labels) != 1 || got.Labels[0] != "weak" {
		t.Fatalf("expected weak labels to fill nil slice, got %#v", got.Labels)
	}
	if got.Enabled == nil || !*got.Enabled {
		t.Fatalf("expected weak pointer to fill nil pointer")
	}

	weak.Values["b"] = 99
	*weak.Enabled = false
	if got.Values["b"] != 2 || !*got.Enabled {
		t.Fatalf("merged value must not alias inputs: %#v", got)
	}
}

func TestMergeLayersZeroInput(t *testing.T) {
	if got := MergeLayers[map[string]int](); got != nil {
		t.Fatalf("expected nil map, got %#v", got)
	}
}

func TestCloneDetachesMaps(t *testing.T) {
	origin := map[string][]string{"k": {"v"}}
	copied := Clone(origin)
	origin["k"][0] = "mutated"
	if copied["k"][0] != "v" {
		t.Fatalf("expected clone to be detached, got %q", copied["k"][0])
	}
}
