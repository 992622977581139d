package exchange

import (
	"fmt"

	layout "github.com/goliatone/go-layout"
)

// Validate checks the structural schema of a document and returns every
// violation found.
func Validate(doc layout.Document) []string {
	var issues []string

	seen := make(map[string]int, len(doc.Widgets))
	for i, widget := range doc.Widgets {
		label := fmt.Sprintf("widgets[%d]", i)
		if widget.ID == "" {
			issues = append(issues, label+": id is required")
		} else {
			label = fmt.Sprintf("widget %q", widget.ID)
			if first, dup := seen[widget.ID]; dup {
				issues = append(issues, fmt.Sprintf("%s: duplicate id (first at widgets[%d])", label, first))
			} else {
				seen[widget.ID] = i
			}
		}
		if widget.Type == "" {
			issues = append(issues, label+": type is required")
		}
		if widget.Size.Width <= 0 || widget.Size.Height <= 0 {
			issues = append(issues, fmt.Sprintf("%s: size %dx%d must be positive", label, widget.Size.Width, widget.Size.Height))
		}
		if widget.Position.X < 0 || widget.Position.Y < 0 {
			issues = append(issues, fmt.Sprintf("%s: position (%d,%d) must not be negative", label, widget.Position.X, widget.Position.Y))
		}
	}

	rules := make(map[string]struct{}, len(doc.RuleOrder))
	for i, id := range doc.RuleOrder {
		if id == "" {
			issues = append(issues, fmt.Sprintf("ruleOrder[%d]: id is required", i))
			continue
		}
		if _, dup := rules[id]; dup {
			issues = append(issues, fmt.Sprintf("ruleOrder[%d]: duplicate rule %q", i, id))
		}
		rules[id] = struct{}{}
	}

	if doc.Metadata.SchemaVersion > layout.CurrentSchemaVersion {
		issues = append(issues, fmt.Sprintf("metadata.schemaVersion %d is not supported", doc.Metadata.SchemaVersion))
	}
	return issues
}
