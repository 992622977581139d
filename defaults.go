package layout

// DefaultLayoutID identifies documents built from DefaultDocument.
const DefaultLayoutID = "default"

// DefaultDocument returns the fixed starter dashboard: six widgets on a
// twelve column grid plus the default rule ordering.
func DefaultDocument() Document {
	return Document{
		ID: DefaultLayoutID,
		Widgets: []Widget{
			{ID: "overview", Type: "stats", Position: Position{X: 0, Y: 0}, Size: Size{Width: 12, Height: 2}, Visible: true},
			{ID: "activity", Type: "activity-feed", Position: Position{X: 0, Y: 2}, Size: Size{Width: 6, Height: 4}, Visible: true},
			{ID: "alerts", Type: "alerts", Position: Position{X: 6, Y: 2}, Size: Size{Width: 6, Height: 4}, Visible: true},
			{ID: "rules", Type: "rule-list", Position: Position{X: 0, Y: 6}, Size: Size{Width: 8, Height: 4}, Visible: true},
			{ID: "chat", Type: "chat", Position: Position{X: 8, Y: 6}, Size: Size{Width: 4, Height: 4}, Visible: true},
			{ID: "quick-actions", Type: "quick-actions", Position: Position{X: 0, Y: 10}, Size: Size{Width: 12, Height: 1}, Visible: true},
		},
		RuleOrder: []string{"critical", "warning", "info"},
		Metadata: Metadata{
			SchemaVersion: CurrentSchemaVersion,
		},
	}
}
