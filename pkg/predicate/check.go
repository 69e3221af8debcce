package predicate

import (
	"fmt"
	"strings"
	"time"
)

// New returns the evaluator registered for engine. An empty name selects expr.
func New(engine string, opts ...Option) (Evaluator, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineExpr:
		return NewExpr(opts...), nil
	case EngineCEL:
		return NewCEL(opts...), nil
	case EngineJS:
		return NewJS(opts...)
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", ErrNoEvaluator, engine)
	}
}

// Checker evaluates boolean predicates and reports every attempt to a Logger.
type Checker struct {
	evaluator Evaluator
	logger    Logger
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithLogger routes evaluation events to logger.
func WithLogger(logger Logger) CheckerOption {
	return func(c *Checker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewChecker wraps evaluator. A nil evaluator falls back to expr.
func NewChecker(evaluator Evaluator, opts ...CheckerOption) *Checker {
	if evaluator == nil {
		evaluator = NewExpr()
	}
	c := &Checker{evaluator: evaluator, logger: noopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Engine reports the wrapped evaluator's engine name.
func (c *Checker) Engine() string {
	return c.evaluator.Engine()
}

// Check evaluates expression and requires a boolean result. An empty
// expression is true so unconditional entries need no predicate.
func (c *Checker) Check(env Env, expression string) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}
	started := time.Now()
	result, err := c.evaluator.Evaluate(env, expression)
	if err == nil {
		if _, ok := result.(bool); !ok {
			err = wrap(c.evaluator.Engine(), expression, env.scope(), fmt.Errorf("%w: got %T", ErrNotBoolean, result))
		}
	}
	c.logger.LogEvaluation(LogEvent{
		Engine:   c.evaluator.Engine(),
		Expr:     expression,
		Scope:    env.scope(),
		Result:   result,
		Duration: time.Since(started),
		Err:      err,
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}
