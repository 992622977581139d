package ctl

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	layout "github.com/goliatone/go-layout"
	"github.com/goliatone/go-layout/pkg/exchange"
)

const legacyYAML = `
id: legacy
layout:
  - id: a
    type: alerts
    size: {width: 4, height: 2}
  - id: b
    type: chat
    size: {width: 4, height: 2}
rules:
  - id: critical
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestValidateReportsEachFile(t *testing.T) {
	good, err := exchange.Export(layout.DefaultDocument(), nil, exchange.ExportOptions{Format: exchange.FormatJSON})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	goodPath := writeTemp(t, "good.json", good.Data)
	badPath := writeTemp(t, "bad.json", []byte(`{"widgets": [{"id": "x"}]}`))

	out, err := run(t, "validate", goodPath, badPath)
	if !errors.Is(err, errInvalidFiles) {
		t.Fatalf("expected errInvalidFiles, got %v", err)
	}
	var payload struct {
		Data []validateResult `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if len(payload.Data) != 2 || !payload.Data[0].Valid || payload.Data[1].Valid {
		t.Fatalf("unexpected results %+v", payload.Data)
	}
	if payload.Data[0].Widgets != 6 || len(payload.Data[1].Issues) == 0 {
		t.Fatalf("unexpected details %+v", payload.Data)
	}

	if _, err := run(t, "validate", goodPath); err != nil {
		t.Fatalf("valid file rejected: %v", err)
	}
}

func TestMigrateUpgradesLegacyFile(t *testing.T) {
	in := writeTemp(t, "old.yaml", []byte(legacyYAML))
	outPath := filepath.Join(t.TempDir(), "new.json")

	out, err := run(t, "migrate", in, "--out", outPath, "--format", "json")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "widget-visibility") {
		t.Fatalf("expected report listing applied steps, got %q", out)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	doc, err := exchange.NewImporter().Decode(exchange.File{Name: "new.json", Data: data})
	if err != nil {
		t.Fatalf("migrated file does not import: %v", err)
	}
	if doc.ID != "legacy" || len(doc.Widgets) != 2 || !doc.Widgets[1].Visible {
		t.Fatalf("unexpected migrated document %+v", doc)
	}
	if doc.Metadata.SchemaVersion != layout.CurrentSchemaVersion {
		t.Fatalf("expected schema %d, got %d", layout.CurrentSchemaVersion, doc.Metadata.SchemaVersion)
	}
}

func TestMigrateRejectsDowngrade(t *testing.T) {
	blob, _ := exchange.Export(layout.DefaultDocument(), nil, exchange.ExportOptions{Format: exchange.FormatYAML, IncludeMetadata: true})
	in := writeTemp(t, "current.yaml", blob.Data)
	if _, err := run(t, "migrate", in, "--to", "2"); err == nil {
		t.Fatalf("expected downgrade to fail")
	}
}

func TestConvertToCSVOnStdout(t *testing.T) {
	blob, _ := exchange.Export(layout.DefaultDocument(), nil, exchange.ExportOptions{Format: exchange.FormatYAML, IncludeMetadata: true})
	in := writeTemp(t, "layout.yaml", blob.Data)

	out, err := run(t, "convert", in, "--format", "csv")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !strings.Contains(out, "id,type,") {
		t.Fatalf("expected csv header in output, got %q", out)
	}
	doc, err := exchange.NewImporter().Decode(exchange.File{Name: "layout.csv", Data: []byte(out)})
	if err != nil || !doc.SameContent(layout.DefaultDocument()) {
		t.Fatalf("converted csv does not round trip: %v", err)
	}
}

func TestConvertInfersFormatFromOutput(t *testing.T) {
	blob, _ := exchange.Export(layout.DefaultDocument(), nil, exchange.ExportOptions{Format: exchange.FormatJSON})
	in := writeTemp(t, "layout.json", blob.Data)
	outPath := filepath.Join(t.TempDir(), "layout.yaml.gz")

	if _, err := run(t, "convert", in, "--out", outPath, "--gzip"); err != nil {
		t.Fatalf("convert: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		t.Fatalf("expected gzip output")
	}
	doc, err := exchange.NewImporter().Decode(exchange.File{Name: "layout.yaml.gz", Data: data})
	if err != nil || len(doc.Widgets) != 6 {
		t.Fatalf("converted yaml does not import: %v", err)
	}
}
