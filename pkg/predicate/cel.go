package predicate

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/functions"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

const EngineCEL = "cel"

var anySliceType = reflect.TypeOf([]any{})

type celEngine struct {
	cfg engineConfig
}

// NewCEL returns an Evaluator backed by cel-go. CEL type-checks against the
// declared variables, so programs are compiled per variable set and cached
// under a key that includes the sorted variable names.
func NewCEL(opts ...Option) Evaluator {
	return &celEngine{cfg: applyOptions(opts)}
}

func (e *celEngine) Engine() string { return EngineCEL }

func (e *celEngine) Evaluate(env Env, expression string) (any, error) {
	program, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return program.Run(env)
}

// Compile validates the expression against an environment with no extra
// variables. Run recompiles when the env declares variables.
func (e *celEngine) Compile(expression string) (Program, error) {
	if expression == "" {
		return nil, wrap(EngineCEL, "", "", ErrEmptyExpression)
	}
	return &celProgram{engine: e, expression: expression}, nil
}

func (e *celEngine) load(expression string, vars map[string]any) (celgo.Program, error) {
	names := make([]string, 0, len(vars))
	for key := range vars {
		names = append(names, key)
	}
	sort.Strings(names)
	key := EngineCEL + ":" + strings.Join(names, ",") + ":" + expression
	if cached, ok := e.cfg.cached(key); ok {
		if program, ok := cached.(celgo.Program); ok {
			return program, nil
		}
	}

	options := []celgo.EnvOption{
		celgo.Variable("now", celgo.TimestampType),
		celgo.Variable("args", celgo.DynType),
	}
	if e.cfg.registry != nil {
		options = append(options, celgo.Function("call", celgo.Overload(
			"call_dyn",
			[]*celgo.Type{celgo.StringType, celgo.ListType(celgo.DynType)},
			celgo.DynType,
			celgo.FunctionBinding(functions.FunctionOp(e.callBinding())),
		)))
	}
	for _, name := range names {
		if name == "now" || name == "args" {
			continue
		}
		options = append(options, celgo.Variable(name, celgo.DynType))
	}
	celEnv, err := celgo.NewEnv(options...)
	if err != nil {
		return nil, err
	}
	ast, issues := celEnv.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	program, err := celEnv.Program(ast)
	if err != nil {
		return nil, err
	}
	e.cfg.store(key, program)
	return program, nil
}

// callBinding exposes the registry as call("name", [args...]).
func (e *celEngine) callBinding() func(values ...ref.Val) ref.Val {
	return func(values ...ref.Val) ref.Val {
		if len(values) == 0 {
			return types.NewErr("predicate: call requires a function name")
		}
		name, ok := values[0].Value().(string)
		if !ok {
			return types.NewErr("predicate: call name must be a string")
		}
		var args []any
		if len(values) > 1 {
			native, err := values[1].ConvertToNative(anySliceType)
			if err != nil {
				return types.NewErr("predicate: call arguments: %v", err)
			}
			args = native.([]any)
		}
		result, err := e.cfg.registry.Call(name, args...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}

type celProgram struct {
	engine     *celEngine
	expression string
}

func (p *celProgram) Run(env Env) (any, error) {
	if p == nil || p.engine == nil {
		return nil, wrap(EngineCEL, "", env.scope(), fmt.Errorf("program not compiled"))
	}
	env = env.withDefaults()
	bindings := env.bindings()
	program, err := p.engine.load(p.expression, env.Vars)
	if err != nil {
		return nil, wrap(EngineCEL, p.expression, env.scope(), err)
	}
	out, _, err := program.Eval(bindings)
	if err != nil {
		return nil, wrap(EngineCEL, p.expression, env.scope(), err)
	}
	return out.Value(), nil
}
