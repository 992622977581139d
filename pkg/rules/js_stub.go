//go:build !js_eval

package rules

// NewJSEvaluator is unavailable without the js_eval build tag.
func NewJSEvaluator(opts ...JSOption) Evaluator {
	_ = applyJSOptions(opts)
	return nil
}

// JSAvailable reports whether the goja engine is compiled in.
func JSAvailable() bool {
	return false
}
