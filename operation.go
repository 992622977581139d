package layout

import (
	"fmt"
	"slices"
)

// OperationKind tags an Operation variant.
type OperationKind string

const (
	KindWidgetReorder OperationKind = "widget-reorder"
	KindWidgetResize  OperationKind = "widget-resize"
	KindRuleReorder   OperationKind = "rule-reorder"
	KindBatch         OperationKind = "batch-operation"
	KindLayoutReset   OperationKind = "layout-reset"
)

// Operation is an invertible layout mutation.
//
// Bind validates the operation against doc and returns a copy carrying the
// before state needed by Inverse. Apply validates again and returns the
// mutated copy; doc itself is never modified.
type Operation interface {
	Kind() OperationKind
	Describe() string
	Bind(doc Document) (Operation, error)
	Apply(doc Document) (Document, error)
	Inverse() Operation
}

// WidgetReorder moves widgets into the After order.
type WidgetReorder struct {
	Before []string `json:"before,omitempty"`
	After  []string `json:"after"`
}

// MoveWidget builds a reorder that moves id to index to.
func MoveWidget(doc Document, id string, to int) (WidgetReorder, error) {
	order := doc.WidgetIDs()
	from := slices.Index(order, id)
	if from < 0 {
		return WidgetReorder{}, invalid(KindWidgetReorder, "id", "widget %q not found", id)
	}
	if to < 0 || to >= len(order) {
		return WidgetReorder{}, invalid(KindWidgetReorder, "index", "target %d out of range", to)
	}
	after := slices.Delete(slices.Clone(order), from, from+1)
	after = slices.Insert(after, to, id)
	return WidgetReorder{Before: order, After: after}, nil
}

func (op WidgetReorder) Kind() OperationKind { return KindWidgetReorder }

func (op WidgetReorder) Describe() string { return "Reorder widgets" }

func (op WidgetReorder) Bind(doc Document) (Operation, error) {
	current := doc.WidgetIDs()
	if err := checkOrder(KindWidgetReorder, op.Before, op.After, current); err != nil {
		return nil, err
	}
	return WidgetReorder{Before: current, After: slices.Clone(op.After)}, nil
}

func (op WidgetReorder) Apply(doc Document) (Document, error) {
	current := doc.WidgetIDs()
	if err := checkOrder(KindWidgetReorder, op.Before, op.After, current); err != nil {
		return Document{}, err
	}
	out := doc.Clone()
	out.Widgets = make([]Widget, 0, len(op.After))
	for _, id := range op.After {
		out.Widgets = append(out.Widgets, doc.Widgets[doc.WidgetIndex(id)].Clone())
	}
	return out, nil
}

func (op WidgetReorder) Inverse() Operation {
	return WidgetReorder{Before: slices.Clone(op.After), After: slices.Clone(op.Before)}
}

// WidgetResize changes the footprint of one widget.
type WidgetResize struct {
	WidgetID string `json:"widgetId"`
	From     Size   `json:"from"`
	To       Size   `json:"to"`
}

func (op WidgetResize) Kind() OperationKind { return KindWidgetResize }

func (op WidgetResize) Describe() string { return fmt.Sprintf("Resize widget %s", op.WidgetID) }

func (op WidgetResize) Bind(doc Document) (Operation, error) {
	idx, err := op.validate(doc)
	if err != nil {
		return nil, err
	}
	return WidgetResize{WidgetID: op.WidgetID, From: doc.Widgets[idx].Size, To: op.To}, nil
}

func (op WidgetResize) Apply(doc Document) (Document, error) {
	idx, err := op.validate(doc)
	if err != nil {
		return Document{}, err
	}
	out := doc.Clone()
	out.Widgets[idx].Size = op.To
	return out, nil
}

func (op WidgetResize) validate(doc Document) (int, error) {
	idx := doc.WidgetIndex(op.WidgetID)
	if idx < 0 {
		return -1, invalid(KindWidgetResize, "widgetId", "widget %q not found", op.WidgetID)
	}
	if op.To.Width <= 0 || op.To.Height <= 0 {
		return -1, invalid(KindWidgetResize, "size", "%dx%d is not a positive size", op.To.Width, op.To.Height)
	}
	if op.From != (Size{}) && doc.Widgets[idx].Size != op.From {
		return -1, invalid(KindWidgetResize, "size", "widget %q is %dx%d, expected %dx%d",
			op.WidgetID, doc.Widgets[idx].Size.Width, doc.Widgets[idx].Size.Height, op.From.Width, op.From.Height)
	}
	return idx, nil
}

func (op WidgetResize) Inverse() Operation {
	return WidgetResize{WidgetID: op.WidgetID, From: op.To, To: op.From}
}

// RuleReorder moves rule identifiers into the After order.
type RuleReorder struct {
	Before []string `json:"before,omitempty"`
	After  []string `json:"after"`
}

func (op RuleReorder) Kind() OperationKind { return KindRuleReorder }

func (op RuleReorder) Describe() string { return "Reorder rules" }

func (op RuleReorder) Bind(doc Document) (Operation, error) {
	if err := checkOrder(KindRuleReorder, op.Before, op.After, doc.RuleOrder); err != nil {
		return nil, err
	}
	return RuleReorder{Before: slices.Clone(doc.RuleOrder), After: slices.Clone(op.After)}, nil
}

func (op RuleReorder) Apply(doc Document) (Document, error) {
	if err := checkOrder(KindRuleReorder, op.Before, op.After, doc.RuleOrder); err != nil {
		return Document{}, err
	}
	out := doc.Clone()
	out.RuleOrder = slices.Clone(op.After)
	return out, nil
}

func (op RuleReorder) Inverse() Operation {
	return RuleReorder{Before: slices.Clone(op.After), After: slices.Clone(op.Before)}
}

// Batch applies several operations as one undoable unit.
type Batch struct {
	Label      string      `json:"label,omitempty"`
	Operations []Operation `json:"operations"`
}

func (op Batch) Kind() OperationKind { return KindBatch }

func (op Batch) Describe() string {
	if op.Label != "" {
		return op.Label
	}
	return fmt.Sprintf("Batch of %d operations", len(op.Operations))
}

func (op Batch) Bind(doc Document) (Operation, error) {
	if len(op.Operations) == 0 {
		return nil, invalid(KindBatch, "operations", "batch is empty")
	}
	bound := make([]Operation, 0, len(op.Operations))
	scratch := doc
	for i, child := range op.Operations {
		if child == nil {
			return nil, invalid(KindBatch, "operations", "operation %d is nil", i)
		}
		b, err := child.Bind(scratch)
		if err != nil {
			return nil, err
		}
		next, err := b.Apply(scratch)
		if err != nil {
			return nil, err
		}
		bound = append(bound, b)
		scratch = next
	}
	return Batch{Label: op.Label, Operations: bound}, nil
}

func (op Batch) Apply(doc Document) (Document, error) {
	if len(op.Operations) == 0 {
		return Document{}, invalid(KindBatch, "operations", "batch is empty")
	}
	current := doc
	for _, child := range op.Operations {
		next, err := child.Apply(current)
		if err != nil {
			return Document{}, err
		}
		current = next
	}
	return current, nil
}

func (op Batch) Inverse() Operation {
	inverse := make([]Operation, len(op.Operations))
	for i, child := range op.Operations {
		inverse[len(op.Operations)-1-i] = child.Inverse()
	}
	return Batch{Label: op.Label, Operations: inverse}
}

// LayoutReset replaces widgets and rule order with those of After while
// keeping the document identity and metadata. A zero After means the
// default layout.
type LayoutReset struct {
	Before *Document `json:"before,omitempty"`
	After  Document  `json:"after"`
}

func (op LayoutReset) Kind() OperationKind { return KindLayoutReset }

func (op LayoutReset) Describe() string { return "Reset layout" }

func (op LayoutReset) Bind(doc Document) (Operation, error) {
	target := op.target()
	if err := checkUniqueWidgets(target); err != nil {
		return nil, err
	}
	before := doc.Clone()
	return LayoutReset{Before: &before, After: target}, nil
}

func (op LayoutReset) Apply(doc Document) (Document, error) {
	if op.Before != nil && !doc.SameContent(*op.Before) {
		return Document{}, invalid(KindLayoutReset, "document", "document changed since the reset was recorded")
	}
	target := op.target()
	if err := checkUniqueWidgets(target); err != nil {
		return Document{}, err
	}
	out := doc.Clone()
	replacement := target.Clone()
	out.Widgets = replacement.Widgets
	out.RuleOrder = replacement.RuleOrder
	return out, nil
}

func (op LayoutReset) Inverse() Operation {
	target := op.target()
	inverse := LayoutReset{Before: &target}
	if op.Before != nil {
		inverse.After = op.Before.Clone()
	}
	return inverse
}

func (op LayoutReset) target() Document {
	if op.After.Widgets == nil && op.After.RuleOrder == nil {
		return DefaultDocument()
	}
	return op.After.Clone()
}

func checkUniqueWidgets(doc Document) error {
	seen := make(map[string]struct{}, len(doc.Widgets))
	for _, w := range doc.Widgets {
		if w.ID == "" {
			return invalid(KindLayoutReset, "widgets", "widget without id")
		}
		if _, dup := seen[w.ID]; dup {
			return invalid(KindLayoutReset, "widgets", "duplicate widget %q", w.ID)
		}
		seen[w.ID] = struct{}{}
	}
	return nil
}

// checkOrder requires after to be a permutation of current, and before (when
// set) to match current exactly.
func checkOrder(kind OperationKind, before, after, current []string) error {
	if len(before) > 0 && !slices.Equal(before, current) {
		return invalid(kind, "before", "order changed since the operation was recorded")
	}
	if len(after) != len(current) {
		return invalid(kind, "after", "expected %d ids, got %d", len(current), len(after))
	}
	known := make(map[string]struct{}, len(current))
	for _, id := range current {
		known[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(after))
	for _, id := range after {
		if _, ok := known[id]; !ok {
			return invalid(kind, "after", "unknown id %q", id)
		}
		if _, dup := seen[id]; dup {
			return invalid(kind, "after", "duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
