// Package rules evaluates small expressions against layout payloads. It backs
// migration guards and import validation rules. expr-lang/expr is the default
// engine; cel-go is available for stricter typed rules and goja when built
// with the js_eval tag.
package rules

import (
	"fmt"
	"sync"
	"time"
)

// Context carries the inputs bound into an expression environment. Document
// keys are exposed as top-level variables.
type Context struct {
	Document map[string]any
	Args     map[string]any
	Now      *time.Time
}

func (ctx Context) withDefaults() Context {
	if ctx.Now == nil {
		now := time.Now()
		ctx.Now = &now
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Document == nil {
		ctx.Document = map[string]any{}
	}
	return ctx
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Engine() string
	Evaluate(ctx Context, expression string) (any, error)
}

// ProgramCache stores compiled programs keyed by expression.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MemoryCache is a concurrency safe ProgramCache.
type MemoryCache struct {
	programs sync.Map
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get(key string) (any, bool) {
	return c.programs.Load(key)
}

func (c *MemoryCache) Set(key string, value any) {
	c.programs.Store(key, value)
}

// EvaluateBool runs expression and requires a boolean result.
func EvaluateBool(e Evaluator, ctx Context, expression string) (bool, error) {
	if e == nil {
		return false, ErrNoEvaluator
	}
	value, err := e.Evaluate(ctx, expression)
	if err != nil {
		return false, err
	}
	result, ok := value.(bool)
	if !ok {
		return false, wrapEvaluationError(e.Engine(), expression, fmt.Errorf("expected bool result, got %T", value))
	}
	return result, nil
}
