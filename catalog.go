package inputmethod

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-inputmethod/pkg/activity"
)

// Registry is the platform method registry queried on refresh.
type Registry interface {
	InputMethods(ctx context.Context) ([]InputMethodDescriptor, error)
}

// RegistryFunc adapts a function to Registry.
type RegistryFunc func(ctx context.Context) ([]InputMethodDescriptor, error)

func (f RegistryFunc) InputMethods(ctx context.Context) ([]InputMethodDescriptor, error) {
	return f(ctx)
}

// Snapshot is an immutable view of the installed methods. Readers may keep
// a Snapshot for as long as they like; refreshes never modify it.
type Snapshot struct {
	Generation  uint64
	RefreshedAt time.Time

	methods []InputMethodDescriptor
	index   map[string]int
}

func newSnapshot(generation uint64, at time.Time, methods []InputMethodDescriptor) *Snapshot {
	snap := &Snapshot{
		Generation:  generation,
		RefreshedAt: at,
		methods:     make([]InputMethodDescriptor, 0, len(methods)),
		index:       make(map[string]int, len(methods)),
	}
	for _, method := range methods {
		if method.ID == "" {
			continue
		}
		if _, dup := snap.index[method.ID]; dup {
			continue
		}
		snap.index[method.ID] = len(snap.methods)
		snap.methods = append(snap.methods, normalizeDescriptor(method))
	}
	return snap
}

// List returns a copy of the methods in registry order.
func (s *Snapshot) List() []InputMethodDescriptor {
	if s == nil {
		return nil
	}
	out := make([]InputMethodDescriptor, len(s.methods))
	for i, method := range s.methods {
		out[i] = method.Clone()
	}
	return out
}

// Get looks up id. A missing id is not an error; callers drop the reference.
func (s *Snapshot) Get(id string) (InputMethodDescriptor, bool) {
	if s == nil {
		return InputMethodDescriptor{}, false
	}
	i, ok := s.index[id]
	if !ok {
		return InputMethodDescriptor{}, false
	}
	return s.methods[i].Clone(), true
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.methods)
}

// CatalogOption configures a Catalog.
type CatalogOption func(*catalogConfig)

type catalogConfig struct {
	logger  Logger
	emitter *activity.Emitter
	now     func() time.Time
}

// WithCatalogLogger routes refresh events to logger.
func WithCatalogLogger(logger Logger) CatalogOption {
	return func(cfg *catalogConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithCatalogActivity emits a catalog-refreshed activity event per swap.
func WithCatalogActivity(emitter *activity.Emitter) CatalogOption {
	return func(cfg *catalogConfig) {
		cfg.emitter = emitter
	}
}

// WithCatalogClock overrides the refresh timestamp source.
func WithCatalogClock(now func() time.Time) CatalogOption {
	return func(cfg *catalogConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// Catalog caches the installed input methods behind an atomically swapped
// Snapshot. It is safe for concurrent use.
type Catalog struct {
	registry Registry
	cfg      catalogConfig

	current atomic.Pointer[Snapshot]
	issued  atomic.Uint64

	mu        sync.Mutex
	listeners map[uint64]func(*Snapshot)
	nextID    uint64

	// notifyMu orders deliveries; notified is the last generation delivered.
	notifyMu sync.Mutex
	notified uint64
}

// NewCatalog returns a catalog holding an empty generation-zero snapshot.
// Call Refresh to populate it.
func NewCatalog(registry Registry, opts ...CatalogOption) *Catalog {
	cfg := catalogConfig{logger: noopLogger{}, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	c := &Catalog{registry: registry, cfg: cfg, listeners: map[uint64]func(*Snapshot){}}
	c.current.Store(newSnapshot(0, time.Time{}, nil))
	return c
}

// Refresh queries the registry and swaps in a new snapshot. The query runs
// outside any lock. A refresh that started before a newer one finished is
// discarded so readers never move backwards. On error the previous
// snapshot stays visible.
func (c *Catalog) Refresh(ctx context.Context) error {
	if c.registry == nil {
		return ErrRegistryRequired
	}
	if ctx == nil {
		ctx = context.Background()
	}
	generation := c.issued.Add(1)
	started := c.cfg.now()

	methods, err := c.registry.InputMethods(ctx)
	if err != nil {
		c.cfg.logger.LogEvent(Event{Kind: EventCatalogFailed, Generation: generation, Err: err})
		return fmt.Errorf("inputmethod: refresh catalog: %w", err)
	}
	next := newSnapshot(generation, c.cfg.now(), methods)

	for {
		prev := c.current.Load()
		if prev.Generation > generation {
			c.cfg.logger.LogEvent(Event{Kind: EventCatalogStale, Generation: generation, Methods: next.Len()})
			return nil
		}
		if c.current.CompareAndSwap(prev, next) {
			break
		}
	}

	c.cfg.logger.LogEvent(Event{
		Kind:       EventCatalogRefreshed,
		Generation: generation,
		Methods:    next.Len(),
		Duration:   next.RefreshedAt.Sub(started),
	})
	c.notify(next)
	if err := c.cfg.emitter.Emit(ctx, activity.BuildCatalogRefreshedEvent(generation, next.Len(), next.RefreshedAt)); err != nil {
		return fmt.Errorf("inputmethod: emit catalog refresh: %w", err)
	}
	return nil
}

// Snapshot returns the current snapshot.
func (c *Catalog) Snapshot() *Snapshot {
	return c.current.Load()
}

// List returns the methods of the current snapshot.
func (c *Catalog) List() []InputMethodDescriptor {
	return c.current.Load().List()
}

// Get looks id up in the current snapshot.
func (c *Catalog) Get(id string) (InputMethodDescriptor, bool) {
	return c.current.Load().Get(id)
}

// Subscribe registers fn to run after every snapshot swap, on the goroutine
// that performed the refresh. Deliveries are serialized and generations
// only increase; a swap already superseded when its delivery runs is
// skipped. fn must not call Refresh. The returned func unregisters it and
// may be called more than once.
func (c *Catalog) Subscribe(fn func(*Snapshot)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Catalog) notify(snap *Snapshot) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if snap.Generation <= c.notified || c.current.Load() != snap {
		return
	}
	c.notified = snap.Generation

	c.mu.Lock()
	ids := make([]uint64, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	listeners := make([]func(*Snapshot), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		listeners = append(listeners, c.listeners[id])
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
