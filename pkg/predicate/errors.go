package predicate

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyExpression = errors.New("predicate: expression must not be empty")
	ErrNotBoolean      = errors.New("predicate: expression did not produce a boolean")
	ErrNoEvaluator     = errors.New("predicate: evaluator not available")
)

// EvaluationError captures engine metadata alongside the originating error.
type EvaluationError struct {
	Engine string
	Expr   string
	Scope  string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	expr := "expr=<empty>"
	if e.Expr != "" {
		expr = fmt.Sprintf("expr=%q", e.Expr)
	}
	return fmt.Sprintf("predicate: %s %s scope=%s: %v", e.Engine, expr, e.Scope, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// wrap attaches engine metadata to err, filling gaps on an existing
// EvaluationError rather than nesting a second one.
func wrap(engine, expr, scope string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Scope == "" {
			evalErr.Scope = scope
		}
		return evalErr
	}
	return &EvaluationError{Engine: engine, Expr: expr, Scope: scope, Err: err}
}
