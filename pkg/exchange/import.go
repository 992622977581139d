package exchange

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"

	layout "github.com/goliatone/go-layout"
	"github.com/goliatone/go-layout/internal/hydrate"
	"github.com/goliatone/go-layout/pkg/migrate"
	"github.com/goliatone/go-layout/pkg/rules"
)

// DefaultMaxImportSize caps decompressed import files.
const DefaultMaxImportSize = 4 << 20

// Rule is an expression that must hold for an imported document. The
// document is bound at the top level (widgets, ruleOrder, metadata).
type Rule struct {
	Name       string
	Expression string
	Message    string
}

// DefaultRules bounds the widget count of imported documents.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "has-widgets", Expression: "size(widgets) > 0", Message: "layout must contain at least one widget"},
		{Name: "widget-limit", Expression: "size(widgets) <= 64", Message: "layout must not contain more than 64 widgets"},
	}
}

// ImportOption configures an Importer.
type ImportOption func(*Importer)

// WithRules replaces DefaultRules.
func WithRules(list ...Rule) ImportOption {
	return func(i *Importer) {
		i.rules = append([]Rule(nil), list...)
	}
}

// WithRuleEvaluator swaps the rule engine (cel by default).
func WithRuleEvaluator(evaluator rules.Evaluator) ImportOption {
	return func(i *Importer) {
		if evaluator != nil {
			i.evaluator = evaluator
		}
	}
}

// WithMigrator sets the migrator used to upgrade older files.
func WithMigrator(m *migrate.Migrator) ImportOption {
	return func(i *Importer) {
		if m != nil {
			i.migrator = m
		}
	}
}

// WithMaxSize caps the decompressed file size.
func WithMaxSize(limit int64) ImportOption {
	return func(i *Importer) {
		if limit > 0 {
			i.maxSize = limit
		}
	}
}

// WithImportLogger attaches a logger.
func WithImportLogger(logger layout.Logger) ImportOption {
	return func(i *Importer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// Importer turns uploaded files into validated, current-schema documents.
type Importer struct {
	rules     []Rule
	evaluator rules.Evaluator
	migrator  *migrate.Migrator
	maxSize   int64
	logger    layout.Logger
}

func NewImporter(opts ...ImportOption) *Importer {
	i := &Importer{
		rules:     DefaultRules(),
		evaluator: rules.NewCELEvaluator(rules.CELWithProgramCache(rules.NewMemoryCache())),
		maxSize:   DefaultMaxImportSize,
		logger:    layout.NopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	if i.migrator == nil {
		i.migrator = migrate.New(migrate.WithLogger(i.logger))
	}
	return i
}

// Decode parses, migrates and validates file. Any problem with the file's
// content is returned as *ImportError.
func (i *Importer) Decode(file File) (layout.Document, error) {
	fail := func(issues ...string) (layout.Document, error) {
		i.logger.LogLayout(layout.LogEvent{
			Component: "exchange",
			Action:    "import_rejected",
			Fields:    map[string]any{"file": file.Name, "issues": issues},
		})
		return layout.Document{}, &ImportError{Filename: file.Name, Issues: issues}
	}

	payload, format, err := i.Payload(file)
	if err != nil {
		return fail(Issues(err)...)
	}

	decoder := hydrate.NewDecoder(
		hydrate.WithPreHook[layout.Document](i.migrateHook),
		hydrate.WithPostHook[layout.Document](i.validateHook),
	)
	doc, err := decoder.Decode(hydrate.Source{Filename: file.Name, Format: string(format)}, payload)
	if err != nil {
		return fail(Issues(err)...)
	}
	return doc, nil
}

// Payload decompresses and parses file without migrating or validating it.
func (i *Importer) Payload(file File) (map[string]any, Format, error) {
	data, err := i.readAll(file.Data)
	if err != nil {
		return nil, "", &ImportError{Filename: file.Name, Issues: []string{err.Error()}}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, "", &ImportError{Filename: file.Name, Issues: []string{"file is empty"}}
	}
	format := detectFormat(file.Name, file.ContentType, data)
	payload, issues := parsePayload(format, data)
	if len(issues) > 0 {
		return nil, format, &ImportError{Filename: file.Name, Issues: issues}
	}
	return payload, format, nil
}

func (i *Importer) readAll(data []byte) ([]byte, error) {
	var reader io.Reader = bytes.NewReader(data)
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip: %v", err)
		}
		defer gz.Close()
		reader = gz
	}
	out, err := io.ReadAll(io.LimitReader(reader, i.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read: %v", err)
	}
	if int64(len(out)) > i.maxSize {
		return nil, fmt.Errorf("file exceeds %d bytes", i.maxSize)
	}
	return out, nil
}

func parsePayload(format Format, data []byte) (map[string]any, []string) {
	var payload map[string]any
	switch format {
	case FormatCSV:
		return decodeCSV(data)
	case FormatYAML:
		if err := yaml.Unmarshal(data, &payload); err != nil {
			return nil, []string{fmt.Sprintf("yaml: %v", err)}
		}
	default:
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, []string{fmt.Sprintf("json: %v", err)}
		}
	}
	if payload == nil {
		return nil, []string{"file does not contain a layout object"}
	}
	// Envelopes carry the document under "layout"; legacy v1 files used
	// "layout" for the widget array instead.
	if inner, ok := payload["layout"].(map[string]any); ok {
		payload = inner
	}
	return payload, nil
}

func (i *Importer) migrateHook(src hydrate.Source, payload map[string]any) (map[string]any, error) {
	from := migrate.SchemaVersionOf(payload)
	latest := i.migrator.Latest()
	if from > latest {
		return nil, &ImportError{Filename: src.Filename, Issues: []string{
			fmt.Sprintf("schema version %d is newer than supported version %d", from, latest),
		}}
	}
	if from == latest {
		return payload, nil
	}
	if _, err := i.migrator.MigratePayload(payload, from, latest); err != nil {
		return nil, &ImportError{Filename: src.Filename, Issues: []string{err.Error()}}
	}
	return payload, nil
}

func (i *Importer) validateHook(src hydrate.Source, doc *layout.Document) error {
	issues := Validate(*doc)
	issues = append(issues, i.checkRules(*doc)...)
	if len(issues) > 0 {
		return &ImportError{Filename: src.Filename, Issues: issues}
	}
	return nil
}

func (i *Importer) checkRules(doc layout.Document) []string {
	if len(i.rules) == 0 || i.evaluator == nil {
		return nil
	}
	payload, err := doc.ToMap()
	if err != nil {
		return []string{err.Error()}
	}
	var issues []string
	for _, rule := range i.rules {
		ok, err := rules.EvaluateBool(i.evaluator, rules.Context{Document: payload}, rule.Expression)
		switch {
		case err != nil:
			issues = append(issues, fmt.Sprintf("rule %s: %v", rule.Name, err))
		case !ok:
			message := rule.Message
			if message == "" {
				message = fmt.Sprintf("rule %s failed", rule.Name)
			}
			issues = append(issues, message)
		}
	}
	return issues
}
