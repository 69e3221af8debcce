//go:build js_eval

package predicate

import (
	"fmt"

	"github.com/dop251/goja"
)

const EngineJS = "js"

type jsEngine struct {
	cfg engineConfig
}

// NewJS returns an Evaluator backed by goja. Each run uses a fresh runtime.
func NewJS(opts ...Option) (Evaluator, error) {
	return &jsEngine{cfg: applyOptions(opts)}, nil
}

// JSAvailable reports whether the binary was built with the js_eval tag.
func JSAvailable() bool { return true }

func (e *jsEngine) Engine() string { return EngineJS }

func (e *jsEngine) Evaluate(env Env, expression string) (any, error) {
	program, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return program.Run(env)
}

func (e *jsEngine) Compile(expression string) (Program, error) {
	if expression == "" {
		return nil, wrap(EngineJS, "", "", ErrEmptyExpression)
	}
	if cached, ok := e.cfg.cached(EngineJS + ":" + expression); ok {
		if program, ok := cached.(*goja.Program); ok {
			return &jsProgram{engine: e, program: program, expression: expression}, nil
		}
	}
	program, err := goja.Compile("", fmt.Sprintf("(function(){ return (%s); })()", expression), true)
	if err != nil {
		return nil, wrap(EngineJS, expression, "", err)
	}
	e.cfg.store(EngineJS+":"+expression, program)
	return &jsProgram{engine: e, program: program, expression: expression}, nil
}

type jsProgram struct {
	engine     *jsEngine
	program    *goja.Program
	expression string
}

func (p *jsProgram) Run(env Env) (any, error) {
	env = env.withDefaults()
	vm := goja.New()
	for key, value := range env.bindings() {
		if err := vm.Set(key, value); err != nil {
			return nil, wrap(EngineJS, p.expression, env.scope(), err)
		}
	}
	if registry := p.engine.cfg.registry; registry != nil {
		for _, name := range registry.Names() {
			if err := vm.Set(name, registry.bind(name)); err != nil {
				return nil, wrap(EngineJS, p.expression, env.scope(), err)
			}
		}
	}
	value, err := vm.RunProgram(p.program)
	if err != nil {
		return nil, wrap(EngineJS, p.expression, env.scope(), err)
	}
	return value.Export(), nil
}
