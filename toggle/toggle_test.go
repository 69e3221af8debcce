package toggle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-inputmethod/pkg/activity"
	"github.com/goliatone/go-inputmethod/pkg/predicate"
	"github.com/goliatone/go-inputmethod/pkg/state"
)

const specDocument = `
engine = "expr"

[[toggle]]
key = "autoclick"
label = "Autoclick delay"
default_threshold = 600
min = 0
max = 1000
predicate = "pointer"

[[toggle]]
key = "long_press"
label = "Long press timeout"
default_threshold = 400
`

func testSpecs(t *testing.T) []Spec {
	t.Helper()
	file, err := ParseSpecs(specDocument)
	if err != nil {
		t.Fatalf("parse specs: %v", err)
	}
	return file.Specs
}

func newTestPolicy(t *testing.T, opts ...Option) (*Policy, *activity.CaptureHook) {
	t.Helper()
	capture := &activity.CaptureHook{}
	opts = append([]Option{
		WithActivity(activity.NewEmitter(activity.Hooks{capture}, activity.Config{Enabled: true})),
		WithClock(func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) }),
	}, opts...)
	policy, err := NewPolicy(state.NewMemoryStore[Values](), testSpecs(t), opts...)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	return policy, capture
}

func TestParseSpecs(t *testing.T) {
	file, err := ParseSpecs(specDocument)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if file.Engine != "expr" || len(file.Specs) != 2 {
		t.Fatalf("unexpected file %+v", file)
	}
	autoclick := file.Specs[0]
	if autoclick.Key != "autoclick" || autoclick.DefaultThreshold != 600 || autoclick.Max != 1000 || autoclick.Predicate != "pointer" {
		t.Fatalf("unexpected spec %+v", autoclick)
	}
	if file.Specs[1].bounded() {
		t.Fatalf("expected long_press to be unbounded")
	}
}

func TestParseSpecsRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown key":     "[[toggle]]\nkey = \"a\"\nmaximum = 3\n",
		"missing key":     "[[toggle]]\nlabel = \"a\"\n",
		"default outside": "[[toggle]]\nkey = \"a\"\ndefault_threshold = 9\nmin = 0\nmax = 5\n",
		"malformed":       "[[toggle]\nkey = \"a\"\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseSpecs(doc); err == nil {
				t.Fatalf("expected error for %q", doc)
			}
		})
	}
}

func TestLoadSpecs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toggles.toml")
	if err := os.WriteFile(path, []byte(specDocument), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	file, err := LoadSpecs(path)
	if err != nil || len(file.Specs) != 2 {
		t.Fatalf("expected two specs, got %+v %v", file, err)
	}
	if _, err := LoadSpecs(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestNewPolicyRejectsDuplicateKeys(t *testing.T) {
	specs := []Spec{{Key: "a"}, {Key: "a"}}
	if _, err := NewPolicy(state.NewMemoryStore[Values](), specs); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec, got %v", err)
	}
	if _, err := NewPolicy(nil, nil); err == nil {
		t.Fatalf("expected error for nil store")
	}
}

func TestPolicyValueLayering(t *testing.T) {
	policy, capture := newTestPolicy(t)
	ctx := context.Background()

	value, err := policy.Value(ctx, "u1", "autoclick")
	if err != nil || value != 600 {
		t.Fatalf("expected default 600, got %d %v", value, err)
	}

	if err := policy.SetSystem(ctx, "autoclick", 300); err != nil {
		t.Fatalf("set system: %v", err)
	}
	if value, _ := policy.Value(ctx, "u1", "autoclick"); value != 300 {
		t.Fatalf("expected system 300, got %d", value)
	}

	if err := policy.Set(ctx, "u1", "autoclick", 0); err != nil {
		t.Fatalf("set user: %v", err)
	}
	if value, _ := policy.Value(ctx, "u1", "autoclick"); value != 0 {
		t.Fatalf("expected explicit zero to override, got %d", value)
	}
	if enabled, _ := policy.Enabled(ctx, "u1", "autoclick"); enabled {
		t.Fatalf("expected autoclick disabled for u1")
	}
	if value, _ := policy.Value(ctx, "u2", "autoclick"); value != 300 {
		t.Fatalf("expected u2 to see system value, got %d", value)
	}
	if value, _ := policy.Value(ctx, "u1", "long_press"); value != 400 {
		t.Fatalf("expected untouched key to keep default, got %d", value)
	}

	if err := policy.Reset(ctx, "u1", "autoclick"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if value, _ := policy.Value(ctx, "u1", "autoclick"); value != 300 {
		t.Fatalf("expected reset to expose system value, got %d", value)
	}

	events := capture.Events()
	if len(events) != 2 {
		t.Fatalf("expected two events, got %+v", events)
	}
	last := events[1]
	if last.Verb != activity.VerbToggleUpdated || last.UserID != "u1" || last.ObjectID != "autoclick" ||
		last.Metadata["old_value"] != 300 || last.Metadata["new_value"] != 0 {
		t.Fatalf("unexpected event %+v", last)
	}
}

func TestPolicySetValidation(t *testing.T) {
	policy, capture := newTestPolicy(t)
	ctx := context.Background()

	if err := policy.Set(ctx, "u1", "autoclick", 1001); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if err := policy.Set(ctx, "u1", "missing", 1); !errors.Is(err, ErrUnknownToggle) {
		t.Fatalf("expected ErrUnknownToggle, got %v", err)
	}
	if err := policy.Set(ctx, " ", "autoclick", 1); !errors.Is(err, ErrUserRequired) {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}
	if err := policy.Set(ctx, "u1", "long_press", 99999); err != nil {
		t.Fatalf("expected unbounded key to accept any value, got %v", err)
	}
	if _, err := policy.Value(ctx, "u1", "missing"); !errors.Is(err, ErrUnknownToggle) {
		t.Fatalf("expected ErrUnknownToggle, got %v", err)
	}
	if len(capture.Events()) != 1 {
		t.Fatalf("expected only the accepted write to emit, got %+v", capture.Events())
	}
}

func TestPolicySetReportsEmitFailure(t *testing.T) {
	failure := errors.New("sink down")
	capture := &activity.CaptureHook{Err: failure}
	policy, err := NewPolicy(state.NewMemoryStore[Values](), testSpecs(t),
		WithActivity(activity.NewEmitter(activity.Hooks{capture}, activity.Config{Enabled: true})))
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	ctx := context.Background()
	if err := policy.Set(ctx, "u1", "autoclick", 100); !errors.Is(err, failure) {
		t.Fatalf("expected emit failure, got %v", err)
	}
	if value, _ := policy.Value(ctx, "u1", "autoclick"); value != 100 {
		t.Fatalf("expected write to persist despite emit failure, got %d", value)
	}
}

func TestPolicyAvailable(t *testing.T) {
	var logged []predicate.LogEvent
	policy, _ := newTestPolicy(t, WithPredicateLogger(predicate.LoggerFunc(func(event predicate.LogEvent) {
		logged = append(logged, event)
	})))

	cases := []struct {
		name string
		key  string
		vars map[string]any
		want bool
	}{
		{name: "pointer attached", key: "autoclick", vars: map[string]any{"pointer": true}, want: true},
		{name: "no pointer", key: "autoclick", vars: map[string]any{"pointer": false}, want: false},
		{name: "no predicate", key: "long_press", want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := policy.Available(tc.key, predicate.Env{Vars: tc.vars})
			if err != nil {
				t.Fatalf("available: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
	if len(logged) != 2 || logged[0].Scope != "autoclick" || logged[0].Engine != predicate.EngineExpr {
		t.Fatalf("unexpected evaluation log %+v", logged)
	}
	if _, err := policy.Available("missing", predicate.Env{}); !errors.Is(err, ErrUnknownToggle) {
		t.Fatalf("expected ErrUnknownToggle, got %v", err)
	}
}

func TestPolicyAvailableWithCEL(t *testing.T) {
	specs := []Spec{{Key: "sticky_keys", Predicate: "keys > 1"}}
	policy, err := NewPolicy(state.NewMemoryStore[Values](), specs, WithEvaluator(predicate.NewCEL()))
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	got, err := policy.Available("sticky_keys", predicate.Env{Vars: map[string]any{"keys": 3}})
	if err != nil || !got {
		t.Fatalf("expected available, got %v %v", got, err)
	}
}

func TestPolicySpecsKeepsOrder(t *testing.T) {
	policy, _ := newTestPolicy(t)
	specs := policy.Specs()
	if len(specs) != 2 || specs[0].Key != "autoclick" || specs[1].Key != "long_press" {
		t.Fatalf("unexpected specs %+v", specs)
	}
}

func TestSpecWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toggles.toml")
	if err := os.WriteFile(path, []byte(specDocument), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	watcher, err := NewSpecWatcher(path, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	if got := len(watcher.Current().Specs); got != 2 {
		t.Fatalf("expected initial load of two specs, got %d", got)
	}

	changes := make(chan File, 4)
	watcher.OnChange(func(file File) {
		select {
		case changes <- file:
		default:
		}
	})
	if err := watcher.Watch(context.Background()); err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer watcher.Close()

	replaceFile(t, path, "[[toggle]]\nkey = \"only\"\n")
	deadline := time.After(5 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case file := <-changes:
			reloaded = len(file.Specs) == 1 && file.Specs[0].Key == "only"
		case <-deadline:
			t.Fatalf("timed out waiting for reload")
		}
	}

	replaceFile(t, path, "[[toggle]]\nbogus = 1\n")
	select {
	case err := <-watcher.Errors():
		if !errors.Is(err, ErrInvalidSpec) {
			t.Fatalf("expected ErrInvalidSpec, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for reload error")
	}
	if got := watcher.Current().Specs[0].Key; got != "only" {
		t.Fatalf("expected last good document to stay current, got %q", got)
	}
}

// replaceFile swaps content in by rename so no reader sees a truncated file.
func replaceFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}
}

func TestPolicyReplaceSpecs(t *testing.T) {
	policy, _ := newTestPolicy(t)
	ctx := context.Background()
	if err := policy.Set(ctx, "u1", "autoclick", 900); err != nil {
		t.Fatalf("set: %v", err)
	}

	err := policy.ReplaceSpecs([]Spec{{Key: "autoclick", DefaultThreshold: 100, Min: 0, Max: 500}, {Key: "autoclick"}})
	if !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec, got %v", err)
	}
	if len(policy.Specs()) != 2 {
		t.Fatalf("expected rejected set to leave specs untouched, got %+v", policy.Specs())
	}

	if err := policy.ReplaceSpecs([]Spec{{Key: "autoclick", DefaultThreshold: 100, Min: 0, Max: 500}, {Key: "sticky_keys", DefaultThreshold: 1}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if value, _ := policy.Value(ctx, "u1", "autoclick"); value != 900 {
		t.Fatalf("expected stored value to survive a spec swap, got %d", value)
	}
	if err := policy.Set(ctx, "u1", "autoclick", 900); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected new bounds to apply, got %v", err)
	}
	if value, _ := policy.Value(ctx, "u2", "sticky_keys"); value != 1 {
		t.Fatalf("expected new spec default, got %d", value)
	}
	if _, err := policy.Value(ctx, "u1", "long_press"); !errors.Is(err, ErrUnknownToggle) {
		t.Fatalf("expected removed key to be unknown, got %v", err)
	}
}
