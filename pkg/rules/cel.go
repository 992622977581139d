package rules

import (
	"fmt"
	"sort"
	"strings"

	celgo "github.com/google/cel-go/cel"
)

// CELOption configures the CEL evaluator.
type CELOption func(*celEvaluator)

// CELWithProgramCache wires a ProgramCache into the CEL evaluator.
func CELWithProgramCache(cache ProgramCache) CELOption {
	return func(e *celEvaluator) {
		e.cache = cache
	}
}

type celEvaluator struct {
	cache ProgramCache
}

// NewCELEvaluator constructs an Evaluator backed by cel-go. Every document
// and argument key is declared as a dynamic variable.
func NewCELEvaluator(opts ...CELOption) Evaluator {
	e := &celEvaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *celEvaluator) Engine() string { return "cel" }

func (e *celEvaluator) Evaluate(ctx Context, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEvaluationError("cel", expression, fmt.Errorf("expression must not be empty"))
	}
	ctx = ctx.withDefaults()
	activation := environment(ctx)
	program, err := e.loadOrCompile(expression, activation)
	if err != nil {
		return nil, err
	}
	out, _, err := program.Eval(activation)
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, err)
	}
	return out.Value(), nil
}

func (e *celEvaluator) loadOrCompile(expression string, activation map[string]any) (celgo.Program, error) {
	names := make([]string, 0, len(activation))
	for key := range activation {
		names = append(names, key)
	}
	sort.Strings(names)
	cacheKey := "cel:" + strings.Join(names, ",") + ":" + expression

	if e.cache != nil {
		if cached, ok := e.cache.Get(cacheKey); ok {
			if program, ok := cached.(celgo.Program); ok {
				return program, nil
			}
		}
	}

	envOpts := make([]celgo.EnvOption, 0, len(names))
	for _, name := range names {
		if name == "now" {
			envOpts = append(envOpts, celgo.Variable(name, celgo.TimestampType))
			continue
		}
		envOpts = append(envOpts, celgo.Variable(name, celgo.DynType))
	}
	env, err := celgo.NewEnv(envOpts...)
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, wrapEvaluationError("cel", expression, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, err)
	}
	if e.cache != nil {
		e.cache.Set(cacheKey, program)
	}
	return program, nil
}
