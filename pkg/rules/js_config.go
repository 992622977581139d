package rules

type jsConfig struct {
	cache ProgramCache
}

// JSOption configures the JS evaluator.
type JSOption func(*jsConfig)

// JSWithProgramCache applies a ProgramCache to the JS evaluator.
func JSWithProgramCache(cache ProgramCache) JSOption {
	return func(cfg *jsConfig) {
		cfg.cache = cache
	}
}

func applyJSOptions(opts []JSOption) jsConfig {
	cfg := jsConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// ByEngine returns the evaluator registered under name ("expr", "cel", "js").
// It returns nil for unknown names or when js is not compiled in.
func ByEngine(name string, cache ProgramCache) Evaluator {
	switch name {
	case "", "expr":
		return NewExprEvaluator(ExprWithProgramCache(cache))
	case "cel":
		return NewCELEvaluator(CELWithProgramCache(cache))
	case "js":
		return NewJSEvaluator(JSWithProgramCache(cache))
	default:
		return nil
	}
}
