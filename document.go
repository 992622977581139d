package layout

import (
	"encoding/json"
	"reflect"
	"time"
)

// CurrentSchemaVersion is the document shape produced by this package. Older
// payloads are upgraded through pkg/migrate.
const CurrentSchemaVersion = 3

// Position places a widget on the dashboard grid.
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Size is a widget footprint in grid units.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Widget is one placement inside a layout document.
type Widget struct {
	ID       string         `json:"id" yaml:"id"`
	Type     string         `json:"type" yaml:"type"`
	Position Position       `json:"position" yaml:"position"`
	Size     Size           `json:"size" yaml:"size"`
	Settings map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
	Visible  bool           `json:"visible" yaml:"visible"`
}

// Metadata is owned by the backend. Version increases on every accepted save.
type Metadata struct {
	Version       int       `json:"version" yaml:"version"`
	SchemaVersion int       `json:"schemaVersion" yaml:"schemaVersion"`
	Name          string    `json:"name,omitempty" yaml:"name,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
	UpdatedBy     string    `json:"updatedBy,omitempty" yaml:"updatedBy,omitempty"`
}

// Document is the dashboard layout being edited.
type Document struct {
	ID        string   `json:"id" yaml:"id"`
	UserID    string   `json:"userId,omitempty" yaml:"userId,omitempty"`
	Widgets   []Widget `json:"widgets" yaml:"widgets"`
	RuleOrder []string `json:"ruleOrder" yaml:"ruleOrder"`
	Metadata  Metadata `json:"metadata" yaml:"metadata"`
}

// Clone returns a deep copy; settings maps are copied recursively.
func (d Document) Clone() Document {
	out := d
	if d.Widgets != nil {
		out.Widgets = make([]Widget, len(d.Widgets))
		for i, w := range d.Widgets {
			out.Widgets[i] = w.Clone()
		}
	}
	if d.RuleOrder != nil {
		out.RuleOrder = append([]string{}, d.RuleOrder...)
	}
	return out
}

// Clone returns a deep copy of the widget.
func (w Widget) Clone() Widget {
	out := w
	out.Settings = cloneSettings(w.Settings)
	return out
}

// Equal reports whether both documents carry the same content and metadata.
// Nil and empty collections compare equal.
func (d Document) Equal(other Document) bool {
	return reflect.DeepEqual(d.normalized(), other.normalized())
}

// SameContent compares widgets and rule order only.
func (d Document) SameContent(other Document) bool {
	a, b := d.normalized(), other.normalized()
	return reflect.DeepEqual(a.Widgets, b.Widgets) && reflect.DeepEqual(a.RuleOrder, b.RuleOrder)
}

func (d Document) normalized() Document {
	out := d.Clone()
	if out.Widgets == nil {
		out.Widgets = []Widget{}
	}
	if out.RuleOrder == nil {
		out.RuleOrder = []string{}
	}
	for i := range out.Widgets {
		if len(out.Widgets[i].Settings) == 0 {
			out.Widgets[i].Settings = nil
		}
	}
	return out
}

// WidgetIDs returns widget identifiers in display order.
func (d Document) WidgetIDs() []string {
	ids := make([]string, len(d.Widgets))
	for i, w := range d.Widgets {
		ids[i] = w.ID
	}
	return ids
}

// WidgetIndex returns the position of id or -1.
func (d Document) WidgetIndex(id string) int {
	for i, w := range d.Widgets {
		if w.ID == id {
			return i
		}
	}
	return -1
}

// ToMap converts the document into the generic payload used by migrations
// and rule evaluation.
func (d Document) ToMap() (map[string]any, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FromMap decodes a generic payload into a Document.
func FromMap(payload map[string]any) (Document, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func cloneSettings(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = cloneAny(value)
	}
	return dst
}

func cloneAny(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneSettings(typed)
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = cloneAny(v)
		}
		return out
	default:
		return value
	}
}
