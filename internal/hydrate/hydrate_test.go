package hydrate

import (
	"errors"
	"strings"
	"testing"

	layout "github.com/goliatone/go-layout"
)

func TestDecodeLayoutPayload(t *testing.T) {
	payload := map[string]any{
		"id": "imported",
		"widgets": []any{
			map[string]any{"id": "a", "type": "alerts", "size": map[string]any{"width": 3, "height": 2}, "visible": true},
		},
		"ruleOrder": []any{"critical"},
		"metadata":  map[string]any{"schemaVersion": 3, "version": 7},
	}

	doc, err := NewDecoder[layout.Document]().Decode(Source{Filename: "a.json"}, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.ID != "imported" || len(doc.Widgets) != 1 || doc.Widgets[0].Size.Width != 3 {
		t.Fatalf("unexpected document %+v", doc)
	}
	if doc.Metadata.Version != 7 {
		t.Fatalf("expected version 7, got %d", doc.Metadata.Version)
	}
}

func TestPreHooksSeeCopyAndChain(t *testing.T) {
	payload := map[string]any{"id": "x", "layout": []any{}}
	rename := func(_ Source, in map[string]any) (map[string]any, error) {
		in["widgets"] = in["layout"]
		delete(in, "layout")
		return in, nil
	}
	tag := func(src Source, in map[string]any) (map[string]any, error) {
		in["id"] = in["id"].(string) + "-" + src.Format
		return nil, nil
	}

	doc, err := NewDecoder(WithPreHook[layout.Document](rename), WithPreHook[layout.Document](tag)).
		Decode(Source{Format: "json"}, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.ID != "x-json" {
		t.Fatalf("expected chained hooks, got id %q", doc.ID)
	}
	if _, ok := payload["layout"]; !ok {
		t.Fatalf("caller payload must not be mutated")
	}
}

func TestPostHookErrorsIncludeSource(t *testing.T) {
	errNoWidgets := errors.New("no widgets")
	decoder := NewDecoder(WithPostHook[layout.Document](func(_ Source, doc *layout.Document) error {
		if len(doc.Widgets) == 0 {
			return errNoWidgets
		}
		return nil
	}))

	_, err := decoder.Decode(Source{Filename: "empty.yaml"}, map[string]any{"id": "x"})
	if !errors.Is(err, errNoWidgets) {
		t.Fatalf("expected wrapped hook error, got %v", err)
	}
	if !strings.Contains(err.Error(), "empty.yaml") {
		t.Fatalf("expected filename in error, got %v", err)
	}
}

func TestStrictRejectsUnknownFields(t *testing.T) {
	payload := map[string]any{"id": "x", "colour": "red"}
	if _, err := NewDecoder[layout.Document]().Decode(Source{}, payload); err != nil {
		t.Fatalf("lenient decode: %v", err)
	}
	if _, err := NewDecoder(WithStrict[layout.Document]()).Decode(Source{}, payload); err == nil {
		t.Fatalf("expected strict decode to fail")
	}
}

func TestDecodeRejectsNilAndMistypedPayloads(t *testing.T) {
	if _, err := NewDecoder[layout.Document]().Decode(Source{}, nil); err == nil {
		t.Fatalf("expected nil payload error")
	}
	if _, err := NewDecoder[layout.Document]().Decode(Source{}, map[string]any{"widgets": "nope"}); err == nil {
		t.Fatalf("expected type error")
	}
}
