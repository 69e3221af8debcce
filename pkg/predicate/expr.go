package predicate

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

const EngineExpr = "expr"

type exprEngine struct {
	cfg engineConfig
}

// NewExpr returns an Evaluator backed by expr-lang/expr. Undefined variables
// evaluate to nil so predicates can reference optional facts.
func NewExpr(opts ...Option) Evaluator {
	return &exprEngine{cfg: applyOptions(opts)}
}

func (e *exprEngine) Engine() string { return EngineExpr }

func (e *exprEngine) Evaluate(env Env, expression string) (any, error) {
	program, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return program.Run(env)
}

func (e *exprEngine) Compile(expression string) (Program, error) {
	if expression == "" {
		return nil, wrap(EngineExpr, "", "", ErrEmptyExpression)
	}
	if cached, ok := e.cfg.cached(EngineExpr + ":" + expression); ok {
		if program, ok := cached.(*exprvm.Program); ok {
			return &exprProgram{program: program, expression: expression, registry: e.cfg.registry}, nil
		}
	}
	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	for _, name := range e.cfg.registry.Names() {
		options = append(options, exprlang.Function(name, e.cfg.registry.bind(name)))
	}
	program, err := exprlang.Compile(expression, options...)
	if err != nil {
		return nil, wrap(EngineExpr, expression, "", err)
	}
	e.cfg.store(EngineExpr+":"+expression, program)
	return &exprProgram{program: program, expression: expression, registry: e.cfg.registry}, nil
}

type exprProgram struct {
	program    *exprvm.Program
	expression string
	registry   *FunctionRegistry
}

// environment adds registry functions, by name and through call, to the
// env bindings.
func (p *exprProgram) environment(env Env) map[string]any {
	bindings := env.bindings()
	if p.registry == nil {
		return bindings
	}
	bindings["call"] = func(name string, arguments ...any) (any, error) {
		return p.registry.Call(name, arguments...)
	}
	for _, name := range p.registry.Names() {
		bindings[name] = p.registry.bind(name)
	}
	return bindings
}

func (p *exprProgram) Run(env Env) (any, error) {
	if p == nil || p.program == nil {
		return nil, wrap(EngineExpr, "", env.scope(), fmt.Errorf("program not compiled"))
	}
	env = env.withDefaults()
	result, err := exprlang.Run(p.program, p.environment(env))
	if err != nil {
		return nil, wrap(EngineExpr, p.expression, env.scope(), err)
	}
	return result, nil
}
