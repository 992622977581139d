package migrate

import (
	"errors"
	"reflect"
	"testing"

	layout "github.com/goliatone/go-layout"
	"github.com/goliatone/go-layout/pkg/rules"
)

func legacyPayload() map[string]any {
	return map[string]any{
		"id": "legacy",
		"layout": []any{
			map[string]any{"id": "overview", "type": "overview", "size": map[string]any{"width": 12, "height": 2}},
			map[string]any{"id": "chat", "type": "chat", "visible": false},
		},
		"rules": []any{
			map[string]any{"id": "critical"},
			map[string]any{"id": "info"},
		},
	}
}

func TestMigratePayloadChainsSteps(t *testing.T) {
	payload := legacyPayload()
	report, err := New().MigratePayload(payload, 1, 3)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	want := []string{"widget-visibility", "widget-settings-and-rule-order"}
	if !reflect.DeepEqual(report.Applied, want) {
		t.Fatalf("expected steps %v, got %v", want, report.Applied)
	}
	if _, ok := payload["layout"]; ok {
		t.Fatalf("legacy layout key must be renamed")
	}
	widgets := payload["widgets"].([]any)
	first := widgets[0].(map[string]any)
	second := widgets[1].(map[string]any)
	if first["visible"] != true || second["visible"] != false {
		t.Fatalf("visibility defaults wrong: %v / %v", first["visible"], second["visible"])
	}
	if _, ok := first["settings"].(map[string]any); !ok {
		t.Fatalf("expected settings map on widget")
	}
	if !reflect.DeepEqual(payload["ruleOrder"], []any{"critical", "info"}) {
		t.Fatalf("unexpected rule order %v", payload["ruleOrder"])
	}
	if SchemaVersionOf(payload) != 3 {
		t.Fatalf("expected schema version 3, got %d", SchemaVersionOf(payload))
	}
}

func TestMigratePayloadSkipsStepsOutsideRange(t *testing.T) {
	payload := map[string]any{
		"widgets":  []any{map[string]any{"id": "a"}},
		"metadata": map[string]any{"schemaVersion": 2},
	}
	report, err := New().MigratePayload(payload, 2, 3)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !reflect.DeepEqual(report.Applied, []string{"widget-settings-and-rule-order"}) {
		t.Fatalf("unexpected steps %v", report.Applied)
	}
	widget := payload["widgets"].([]any)[0].(map[string]any)
	if _, ok := widget["visible"]; ok {
		t.Fatalf("v2 step must not run for a v2 payload")
	}
}

func TestMigratePayloadSameVersionIsNoop(t *testing.T) {
	payload := map[string]any{"widgets": []any{}}
	report, err := New().MigratePayload(payload, 3, 3)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(report.Applied) != 0 {
		t.Fatalf("expected no steps, got %v", report.Applied)
	}
}

func TestMigratePayloadRejectsInvalidRange(t *testing.T) {
	cases := []struct{ from, to int }{
		{from: 3, to: 2},
		{from: 1, to: layout.CurrentSchemaVersion + 1},
		{from: -1, to: 2},
	}
	for _, tc := range cases {
		if _, err := New().MigratePayload(map[string]any{}, tc.from, tc.to); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("%d -> %d: expected ErrInvalidRange, got %v", tc.from, tc.to, err)
		}
	}
}

func TestMigrateStepErrorsAreWrapped(t *testing.T) {
	payload := map[string]any{"widgets": "not-a-list"}
	if _, err := New().MigratePayload(payload, 1, 2); err == nil {
		t.Fatalf("expected step error for malformed widgets")
	}
}

func TestCustomGuardSeesPayload(t *testing.T) {
	ran := false
	m := New(WithSteps(Step{
		Name:       "only-named",
		Introduced: 2,
		Guard:      `toVersion >= 2 && id == "target"`,
		Apply: func(map[string]any) error {
			ran = true
			return nil
		},
	}))

	if _, err := m.MigratePayload(map[string]any{"id": "other"}, 1, 2); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if ran {
		t.Fatalf("guard should have rejected payload")
	}
	if _, err := m.MigratePayload(map[string]any{"id": "target"}, 1, 2); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !ran {
		t.Fatalf("guard should have accepted payload")
	}
}

func TestMigrateWithCELGuards(t *testing.T) {
	m := New(WithEvaluator(rules.NewCELEvaluator()))
	payload := legacyPayload()
	report, err := m.MigratePayload(payload, 1, 3)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(report.Applied) != 2 {
		t.Fatalf("expected both steps under cel, got %v", report.Applied)
	}
}

func TestMigrateDocument(t *testing.T) {
	doc := layout.Document{
		ID: "doc",
		Widgets: []layout.Widget{
			{ID: "a", Type: "alerts", Size: layout.Size{Width: 2, Height: 2}, Visible: true},
		},
		Metadata: layout.Metadata{SchemaVersion: 2, Version: 4},
	}
	out, report, err := New().Migrate(doc, 2, 3)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if out.Metadata.SchemaVersion != 3 || out.Metadata.Version != 4 {
		t.Fatalf("unexpected metadata %+v", out.Metadata)
	}
	if out.RuleOrder == nil || len(out.RuleOrder) != 0 {
		t.Fatalf("expected empty rule order, got %v", out.RuleOrder)
	}
	if len(report.Applied) != 1 {
		t.Fatalf("expected one step, got %v", report.Applied)
	}
	if doc.Metadata.SchemaVersion != 2 {
		t.Fatalf("input document must not change")
	}
}

func TestSchemaVersionOfDefaultsToOne(t *testing.T) {
	if SchemaVersionOf(map[string]any{}) != 1 {
		t.Fatalf("expected legacy payload to read as v1")
	}
	if SchemaVersionOf(map[string]any{"metadata": map[string]any{"schemaVersion": float64(2)}}) != 2 {
		t.Fatalf("expected float versions from JSON to decode")
	}
}
