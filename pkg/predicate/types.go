// Package predicate evaluates the small boolean expressions that gate
// optional settings (feature flags, device capability checks). Three engines
// share one Evaluator contract: expr (default), CEL, and JavaScript via goja
// when built with the js_eval tag.
package predicate

import (
	"sync"
	"time"
)

// Env carries the variables an expression is evaluated against.
type Env struct {
	Vars     map[string]any
	Args     map[string]any
	Now      *time.Time
	ScopeKey string
}

func (env Env) withDefaults() Env {
	if env.Now == nil {
		now := time.Now()
		env.Now = &now
	}
	if env.Vars == nil {
		env.Vars = map[string]any{}
	}
	if env.Args == nil {
		env.Args = map[string]any{}
	}
	return env
}

func (env Env) scope() string {
	if env.ScopeKey == "" {
		return "unknown"
	}
	return env.ScopeKey
}

// bindings flattens the env into the variable map handed to an engine.
func (env Env) bindings() map[string]any {
	out := make(map[string]any, len(env.Vars)+2)
	out["now"] = *env.Now
	out["args"] = env.Args
	for key, value := range env.Vars {
		out[key] = value
	}
	return out
}

// Evaluator executes expressions against an Env.
type Evaluator interface {
	Engine() string
	Evaluate(env Env, expr string) (any, error)
	Compile(expr string) (Program, error)
}

// Program is a compiled, reusable expression.
type Program interface {
	Run(env Env) (any, error)
}

// ProgramCache stores compiled programs keyed by expression source.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MemoryProgramCache is a concurrency-safe ProgramCache.
type MemoryProgramCache struct {
	mu       sync.RWMutex
	programs map[string]any
}

func NewMemoryProgramCache() *MemoryProgramCache {
	return &MemoryProgramCache{programs: map[string]any{}}
}

func (c *MemoryProgramCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.programs[key]
	return value, ok
}

func (c *MemoryProgramCache) Set(key string, value any) {
	c.mu.Lock()
	c.programs[key] = value
	c.mu.Unlock()
}

// Len reports the number of cached programs.
func (c *MemoryProgramCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}

// Option configures an engine.
type Option func(*engineConfig)

type engineConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// WithProgramCache caches compiled programs across evaluations.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *engineConfig) {
		cfg.cache = cache
	}
}

// WithFunctionRegistry exposes registered functions to expressions. The
// registry is cloned so later registrations do not leak into the engine.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *engineConfig) {
		if registry != nil {
			cfg.registry = registry.Clone()
		}
	}
}

func applyOptions(opts []Option) engineConfig {
	cfg := engineConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (cfg engineConfig) cached(key string) (any, bool) {
	if cfg.cache == nil {
		return nil, false
	}
	return cfg.cache.Get(key)
}

func (cfg engineConfig) store(key string, program any) {
	if cfg.cache != nil {
		cfg.cache.Set(key, program)
	}
}
