// Package migrate upgrades layout payloads between schema versions.
//
// A Migrator holds an ordered list of steps. Each step owns a guard
// expression evaluated against the requested version range (bound as
// fromVersion and toVersion) and the payload itself; every step whose guard
// passes runs, independently of the others, so one call can chain several
// upgrades.
package migrate

import (
	"errors"
	"fmt"
	"sort"

	layout "github.com/goliatone/go-layout"
	"github.com/goliatone/go-layout/pkg/rules"
)

var ErrInvalidRange = errors.New("migrate: invalid version range")

// Step is one structural upgrade.
type Step struct {
	Name string
	// Introduced is the schema version the step upgrades payloads to.
	Introduced int
	// Guard overrides the default "fromVersion < Introduced && toVersion >= Introduced".
	Guard string
	Apply func(payload map[string]any) error
}

func (s Step) guard() string {
	if s.Guard != "" {
		return s.Guard
	}
	return fmt.Sprintf("fromVersion < %d && toVersion >= %d", s.Introduced, s.Introduced)
}

// Report lists the steps that ran.
type Report struct {
	From    int
	To      int
	Applied []string
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithSteps replaces the built-in steps.
func WithSteps(steps ...Step) Option {
	return func(m *Migrator) {
		m.steps = append([]Step(nil), steps...)
	}
}

// WithEvaluator swaps the guard evaluator (expr by default).
func WithEvaluator(evaluator rules.Evaluator) Option {
	return func(m *Migrator) {
		if evaluator != nil {
			m.evaluator = evaluator
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger layout.Logger) Option {
	return func(m *Migrator) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithLatest overrides the newest schema version the migrator accepts.
func WithLatest(version int) Option {
	return func(m *Migrator) {
		m.latest = version
	}
}

// Migrator runs guarded steps over layout payloads.
type Migrator struct {
	steps     []Step
	evaluator rules.Evaluator
	logger    layout.Logger
	latest    int
}

// New returns a Migrator with DefaultSteps and the expr evaluator.
func New(opts ...Option) *Migrator {
	m := &Migrator{
		steps:     DefaultSteps(),
		evaluator: rules.NewExprEvaluator(rules.ExprWithProgramCache(rules.NewMemoryCache())),
		logger:    layout.NopLogger(),
		latest:    layout.CurrentSchemaVersion,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	sort.SliceStable(m.steps, func(i, j int) bool {
		return m.steps[i].Introduced < m.steps[j].Introduced
	})
	return m
}

// Latest returns the newest schema version this migrator produces.
func (m *Migrator) Latest() int {
	return m.latest
}

// MigratePayload upgrades payload in place from one schema version to another
// and stamps metadata.schemaVersion with to.
func (m *Migrator) MigratePayload(payload map[string]any, from, to int) (Report, error) {
	report := Report{From: from, To: to}
	if payload == nil {
		return report, fmt.Errorf("migrate: payload is nil")
	}
	if from < 0 || to < from || to > m.latest {
		return report, fmt.Errorf("%w: %d -> %d (latest %d)", ErrInvalidRange, from, to, m.latest)
	}

	args := map[string]any{"fromVersion": from, "toVersion": to}
	for _, step := range m.steps {
		ok, err := rules.EvaluateBool(m.evaluator, rules.Context{Document: payload, Args: args}, step.guard())
		if err != nil {
			return report, fmt.Errorf("migrate: guard for %q: %w", step.Name, err)
		}
		if !ok {
			continue
		}
		if step.Apply != nil {
			if err := step.Apply(payload); err != nil {
				m.logger.LogLayout(layout.LogEvent{Component: "migrate", Action: step.Name, Err: err})
				return report, fmt.Errorf("migrate: step %q: %w", step.Name, err)
			}
		}
		report.Applied = append(report.Applied, step.Name)
	}

	meta, _ := payload["metadata"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
		payload["metadata"] = meta
	}
	meta["schemaVersion"] = to

	m.logger.LogLayout(layout.LogEvent{
		Component: "migrate",
		Action:    "payload",
		Fields:    map[string]any{"from": from, "to": to, "applied": report.Applied},
	})
	return report, nil
}

// Migrate upgrades doc and returns the result; doc is not modified.
func (m *Migrator) Migrate(doc layout.Document, from, to int) (layout.Document, Report, error) {
	payload, err := doc.ToMap()
	if err != nil {
		return layout.Document{}, Report{From: from, To: to}, fmt.Errorf("migrate: encode document: %w", err)
	}
	report, err := m.MigratePayload(payload, from, to)
	if err != nil {
		return layout.Document{}, report, err
	}
	out, err := layout.FromMap(payload)
	if err != nil {
		return layout.Document{}, report, fmt.Errorf("migrate: decode document: %w", err)
	}
	return out, report, nil
}

// SchemaVersionOf reads metadata.schemaVersion from a payload. Payloads
// without one are treated as version 1.
func SchemaVersionOf(payload map[string]any) int {
	meta, _ := payload["metadata"].(map[string]any)
	switch v := meta["schemaVersion"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 1
	}
}
