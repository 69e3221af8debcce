package toggle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-inputmethod/layering"
	"github.com/goliatone/go-inputmethod/pkg/activity"
	"github.com/goliatone/go-inputmethod/pkg/predicate"
	"github.com/goliatone/go-inputmethod/pkg/state"
)

// ErrUserRequired is returned when a per-user write names no user.
var ErrUserRequired = errors.New("toggle: user id is required")

// Domain is the state domain toggle values are stored under.
const Domain = "accessibility.toggles"

// Values is the persisted snapshot for one scope. Keys absent from a scope
// fall through to the weaker scope.
type Values struct {
	Thresholds map[string]int `json:"thresholds,omitempty"`
}

// Option configures a Policy.
type Option func(*Policy)

// WithEvaluator selects the predicate engine. expr is used by default.
func WithEvaluator(evaluator predicate.Evaluator) Option {
	return func(p *Policy) {
		if evaluator != nil {
			p.evaluator = evaluator
		}
	}
}

// WithPredicateLogger reports predicate evaluations to logger.
func WithPredicateLogger(logger predicate.Logger) Option {
	return func(p *Policy) {
		p.logger = logger
	}
}

func WithActivity(emitter *activity.Emitter) Option {
	return func(p *Policy) {
		p.emitter = emitter
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		if now != nil {
			p.now = now
		}
	}
}

// Policy serves every configured setting. Specs may be swapped while the
// policy is in use; stored values for keys that disappear are kept.
type Policy struct {
	mu    sync.RWMutex
	specs map[string]Spec
	order []string

	resolver  state.Resolver[Values]
	evaluator predicate.Evaluator
	logger    predicate.Logger
	checker   *predicate.Checker
	emitter   *activity.Emitter
	now       func() time.Time
}

// NewPolicy validates specs and binds them to store. Keys must be unique.
func NewPolicy(store state.Store[Values], specs []Spec, opts ...Option) (*Policy, error) {
	if store == nil {
		return nil, fmt.Errorf("toggle: store is required")
	}
	index, order, err := indexSpecs(specs)
	if err != nil {
		return nil, err
	}
	p := &Policy{
		specs:    index,
		order:    order,
		resolver: state.Resolver[Values]{Store: store},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	var checkerOpts []predicate.CheckerOption
	if p.logger != nil {
		checkerOpts = append(checkerOpts, predicate.WithLogger(p.logger))
	}
	p.checker = predicate.NewChecker(p.evaluator, checkerOpts...)
	return p, nil
}

// ReplaceSpecs swaps in a new spec set, typically from a SpecWatcher. The
// set is validated as a whole; on error the current specs stay in place.
func (p *Policy) ReplaceSpecs(specs []Spec) error {
	index, order, err := indexSpecs(specs)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.specs, p.order = index, order
	p.mu.Unlock()
	return nil
}

func indexSpecs(specs []Spec) (map[string]Spec, []string, error) {
	index := make(map[string]Spec, len(specs))
	order := make([]string, 0, len(specs))
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, nil, err
		}
		if _, dup := index[spec.Key]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate key %q", ErrInvalidSpec, spec.Key)
		}
		index[spec.Key] = spec
		order = append(order, spec.Key)
	}
	return index, order, nil
}

// Specs returns the configured specs in declaration order.
func (p *Policy) Specs() []Spec {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Spec, 0, len(p.order))
	for _, key := range p.order {
		out = append(out, p.specs[key])
	}
	return out
}

func (p *Policy) spec(key string) (Spec, error) {
	p.mu.RLock()
	spec, ok := p.specs[key]
	p.mu.RUnlock()
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownToggle, key)
	}
	return spec, nil
}

// Available evaluates the setting's feature-flag predicate against env.
func (p *Policy) Available(key string, env predicate.Env) (bool, error) {
	spec, err := p.spec(key)
	if err != nil {
		return false, err
	}
	if env.ScopeKey == "" {
		env.ScopeKey = spec.Key
	}
	return p.checker.Check(env, spec.Predicate)
}

// Value returns the effective threshold for userID: the user scope over the
// system scope over the spec default.
func (p *Policy) Value(ctx context.Context, userID, key string) (int, error) {
	spec, err := p.spec(key)
	if err != nil {
		return 0, err
	}
	merged, err := p.resolver.ResolveWithDefaults(ctx, Domain, p.defaults(), p.scopes(userID)...)
	if err != nil {
		return 0, fmt.Errorf("toggle: resolve %q: %w", key, err)
	}
	if value, ok := merged.Value.Thresholds[key]; ok {
		return value, nil
	}
	return spec.DefaultThreshold, nil
}

// Enabled reports whether the effective threshold is non-zero.
func (p *Policy) Enabled(ctx context.Context, userID, key string) (bool, error) {
	value, err := p.Value(ctx, userID, key)
	return value != 0, err
}

// Set stores value in userID's scope and emits a toggle-updated event.
func (p *Policy) Set(ctx context.Context, userID, key string, value int) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUserRequired
	}
	return p.write(ctx, layering.UserScope(userID), userID, key, value)
}

// SetSystem stores value in the system scope, beneath every user override.
func (p *Policy) SetSystem(ctx context.Context, key string, value int) error {
	return p.write(ctx, layering.SystemScope(), "", key, value)
}

// Reset removes userID's override so the system or default value applies.
func (p *Policy) Reset(ctx context.Context, userID, key string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUserRequired
	}
	if _, err := p.spec(key); err != nil {
		return err
	}
	ref := state.Ref{Domain: Domain, Scope: layering.UserScope(userID)}
	_, _, err := p.resolver.Mutate(ctx, ref, state.Meta{UpdatedAt: p.now().UTC()}, func(v *Values) error {
		delete(v.Thresholds, key)
		return nil
	})
	return err
}

func (p *Policy) write(ctx context.Context, scope layering.Scope, userID, key string, value int) error {
	spec, err := p.spec(key)
	if err != nil {
		return err
	}
	if !spec.accepts(value) {
		return fmt.Errorf("%w: %s=%d outside [%d, %d]", ErrOutOfRange, key, value, spec.Min, spec.Max)
	}
	old, err := p.Value(ctx, userID, key)
	if err != nil {
		return err
	}
	at := p.now()
	ref := state.Ref{Domain: Domain, Scope: scope}
	if _, _, err := p.resolver.Mutate(ctx, ref, state.Meta{UpdatedAt: at.UTC()}, func(v *Values) error {
		if v.Thresholds == nil {
			v.Thresholds = map[string]int{}
		}
		v.Thresholds[key] = value
		return nil
	}); err != nil {
		return err
	}
	return p.emitter.Emit(ctx, activity.BuildToggleUpdatedEvent(userID, key, old, value, at))
}

func (p *Policy) defaults() Values {
	p.mu.RLock()
	defer p.mu.RUnlock()
	values := Values{Thresholds: make(map[string]int, len(p.specs))}
	for key, spec := range p.specs {
		values.Thresholds[key] = spec.DefaultThreshold
	}
	return values
}

func (p *Policy) scopes(userID string) []layering.Scope {
	scopes := []layering.Scope{layering.SystemScope()}
	if strings.TrimSpace(userID) != "" {
		scopes = append([]layering.Scope{layering.UserScope(userID)}, scopes...)
	}
	return scopes
}
