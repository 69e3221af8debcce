package inputmethod

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-inputmethod/layering"
	"github.com/goliatone/go-inputmethod/pkg/activity"
	"github.com/goliatone/go-inputmethod/pkg/state"
)

// EnablementDomain is the state domain the persisted strings live under.
const EnablementDomain = "inputmethod.enablement"

// ManagerOption configures a Manager.
type ManagerOption func(*managerConfig)

type managerConfig struct {
	rule    AlwaysEnabledRule
	logger  Logger
	emitter *activity.Emitter
	now     func() time.Time
	newID   func() string
}

// WithRule selects the always-enabled rule used by Apply.
func WithRule(rule AlwaysEnabledRule) ManagerOption {
	return func(cfg *managerConfig) {
		cfg.rule = rule
	}
}

func WithManagerLogger(logger Logger) ManagerOption {
	return func(cfg *managerConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithManagerActivity emits an enablement-saved activity event per Apply.
func WithManagerActivity(emitter *activity.Emitter) ManagerOption {
	return func(cfg *managerConfig) {
		cfg.emitter = emitter
	}
}

func WithManagerClock(now func() time.Time) ManagerOption {
	return func(cfg *managerConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// WithSnapshotIDs overrides the snapshot id generator (uuid by default).
func WithSnapshotIDs(newID func() string) ManagerOption {
	return func(cfg *managerConfig) {
		if newID != nil {
			cfg.newID = newID
		}
	}
}

// Manager loads, reconciles and persists per-user enablement state.
type Manager struct {
	catalog  *Catalog
	resolver state.Resolver[EncodedState]
	cfg      managerConfig
}

func NewManager(catalog *Catalog, store state.Store[EncodedState], opts ...ManagerOption) (*Manager, error) {
	if catalog == nil {
		return nil, ErrCatalogRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}
	cfg := managerConfig{logger: noopLogger{}, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Manager{catalog: catalog, resolver: state.Resolver[EncodedState]{Store: store}, cfg: cfg}, nil
}

// Loaded is a decoded persisted snapshot.
type Loaded struct {
	State   EnablementState
	Encoded EncodedState
	Meta    state.Meta
	Found   bool
}

// Load reads the persisted strings for userID. A user with nothing stored
// loads as the empty state.
func (m *Manager) Load(ctx context.Context, userID string) (Loaded, error) {
	ref, err := enablementRef(userID)
	if err != nil {
		return Loaded{}, err
	}
	encoded, meta, ok, err := m.resolver.Store.Load(ctx, ref)
	if err != nil {
		return Loaded{}, fmt.Errorf("inputmethod: load enablement for %q: %w", userID, err)
	}
	if !ok {
		encoded = EncodedState{}
	}
	return Loaded{State: encoded.Decode(), Encoded: encoded, Meta: meta, Found: ok}, nil
}

// ApplyRequest is one UI commit.
type ApplyRequest struct {
	UserID           string
	ActorID          string
	Toggles          Toggles
	HardwareKeyboard bool
	// ETag, when set, must match the stored snapshot or Apply fails with
	// state.ErrETagMismatch.
	ETag string
}

// Applied is the outcome of a successful Apply.
type Applied struct {
	Result ReconcileResult
	Meta   state.Meta
}

// Apply reconciles the stored state with req against the current catalog
// snapshot and saves all persisted strings as one snapshot. When the
// returned error wraps an activity failure the save has still happened.
func (m *Manager) Apply(ctx context.Context, req ApplyRequest) (Applied, error) {
	ref, err := enablementRef(req.UserID)
	if err != nil {
		return Applied{}, err
	}
	catalog := m.catalog.List()
	started := m.cfg.now()

	var result ReconcileResult
	meta := state.Meta{SnapshotID: m.cfg.newID(), ETag: req.ETag, UpdatedAt: started.UTC()}
	_, saved, err := m.resolver.Mutate(ctx, ref, meta, func(snapshot *EncodedState) error {
		result = Reconcile(ReconcileInput{
			Catalog:          catalog,
			Previous:         *snapshot,
			Toggles:          req.Toggles,
			HardwareKeyboard: req.HardwareKeyboard,
			Rule:             m.cfg.rule,
		})
		if err := result.State.Validate(catalog); err != nil {
			return err
		}
		m.cfg.logger.LogEvent(Event{
			Kind:     EventReconciled,
			UserID:   req.UserID,
			Methods:  len(catalog),
			Enabled:  result.Encoded.EnabledMethods,
			Selected: result.Encoded.SelectedMethod,
		})
		*snapshot = result.Encoded
		return nil
	})
	if err != nil {
		m.cfg.logger.LogEvent(Event{Kind: EventSaveFailed, UserID: req.UserID, Err: err})
		return Applied{}, err
	}

	m.cfg.logger.LogEvent(Event{
		Kind:     EventSaved,
		UserID:   req.UserID,
		Methods:  len(catalog),
		Enabled:  result.Encoded.EnabledMethods,
		Selected: result.Encoded.SelectedMethod,
		Duration: m.cfg.now().Sub(started),
	})
	applied := Applied{Result: result, Meta: saved}

	event := activity.BuildEnablementSavedEvent(activity.EnablementInput{
		ActorID:          req.ActorID,
		UserID:           req.UserID,
		SnapshotID:       saved.SnapshotID,
		EnabledMethods:   result.Encoded.EnabledMethods,
		DisabledSystem:   result.Encoded.DisabledSystemMethods,
		SelectedMethod:   result.Encoded.SelectedMethod,
		SelectedSubtype:  result.Encoded.SelectedSubtype,
		HardwareKeyboard: req.HardwareKeyboard,
		OccurredAt:       started,
	})
	if err := m.cfg.emitter.Emit(ctx, event); err != nil {
		return applied, fmt.Errorf("inputmethod: emit enablement saved: %w", err)
	}
	return applied, nil
}

func enablementRef(userID string) (state.Ref, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return state.Ref{}, ErrUserRequired
	}
	return state.Ref{Domain: EnablementDomain, Scope: layering.UserScope(userID)}, nil
}
