package migrate

import "fmt"

// DefaultSteps returns the built-in upgrades:
//
//	v2: widgets gain an explicit "visible" flag (default true); the legacy
//	    top-level "layout" array is renamed to "widgets".
//	v3: widgets gain a "settings" map; documents gain "ruleOrder", seeded
//	    from the legacy "rules" array of {id} objects when present.
func DefaultSteps() []Step {
	return []Step{
		{Name: "widget-visibility", Introduced: 2, Apply: addWidgetVisibility},
		{Name: "widget-settings-and-rule-order", Introduced: 3, Apply: addSettingsAndRuleOrder},
	}
}

func addWidgetVisibility(payload map[string]any) error {
	if legacy, ok := payload["layout"]; ok {
		if _, exists := payload["widgets"]; !exists {
			payload["widgets"] = legacy
		}
		delete(payload, "layout")
	}
	return eachWidget(payload, func(widget map[string]any) {
		if _, ok := widget["visible"]; !ok {
			widget["visible"] = true
		}
	})
}

func addSettingsAndRuleOrder(payload map[string]any) error {
	if err := eachWidget(payload, func(widget map[string]any) {
		if _, ok := widget["settings"]; !ok {
			widget["settings"] = map[string]any{}
		}
	}); err != nil {
		return err
	}

	if existing, ok := payload["ruleOrder"]; ok && existing != nil {
		return nil
	}
	order := []any{}
	if legacy, ok := payload["rules"].([]any); ok {
		for i, rule := range legacy {
			entry, ok := rule.(map[string]any)
			if !ok {
				return fmt.Errorf("rules[%d] is %T, expected object", i, rule)
			}
			if id, ok := entry["id"].(string); ok && id != "" {
				order = append(order, id)
			}
		}
		delete(payload, "rules")
	}
	payload["ruleOrder"] = order
	return nil
}

func eachWidget(payload map[string]any, fn func(map[string]any)) error {
	raw, ok := payload["widgets"]
	if !ok || raw == nil {
		return nil
	}
	widgets, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("widgets is %T, expected array", raw)
	}
	for i, item := range widgets {
		widget, ok := item.(map[string]any)
		if !ok {
			return fmt.Errorf("widgets[%d] is %T, expected object", i, item)
		}
		fn(widget)
	}
	return nil
}
