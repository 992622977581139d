package exchange

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const csvHeaderPrefix = "id,type,"

var csvColumns = []string{"id", "type", "x", "y", "width", "height", "visible", "settings"}

// encodeCSV writes one row per widget. Document fields travel as leading
// "# key: value" comment lines.
func encodeCSV(envelope Envelope) ([]byte, error) {
	var buf bytes.Buffer
	doc := envelope.Layout

	comment := func(key, value string) {
		fmt.Fprintf(&buf, "# %s: %s\n", key, value)
	}
	comment("id", doc.ID)
	comment("ruleOrder", strings.Join(doc.RuleOrder, "|"))
	comment("schemaVersion", strconv.Itoa(doc.Metadata.SchemaVersion))
	if envelope.Export != nil {
		comment("name", doc.Metadata.Name)
		comment("version", strconv.Itoa(doc.Metadata.Version))
		if !doc.Metadata.UpdatedAt.IsZero() {
			comment("updatedAt", doc.Metadata.UpdatedAt.UTC().Format(time.RFC3339))
		}
		comment("updatedBy", doc.Metadata.UpdatedBy)
		comment("generator", envelope.Export.Generator)
		comment("exportedAt", envelope.Export.ExportedAt.Format(time.RFC3339))
	}
	for _, rev := range envelope.History {
		comment("revision", fmt.Sprintf("%d,%s,%s,%d", rev.Version, rev.UpdatedAt.UTC().Format(time.RFC3339), rev.UpdatedBy, rev.Widgets))
	}

	writer := csv.NewWriter(&buf)
	if err := writer.Write(csvColumns); err != nil {
		return nil, err
	}
	for _, widget := range doc.Widgets {
		settings := "{}"
		if len(widget.Settings) > 0 {
			raw, err := json.Marshal(widget.Settings)
			if err != nil {
				return nil, fmt.Errorf("widget %q settings: %w", widget.ID, err)
			}
			settings = string(raw)
		}
		row := []string{
			widget.ID,
			widget.Type,
			strconv.Itoa(widget.Position.X),
			strconv.Itoa(widget.Position.Y),
			strconv.Itoa(widget.Size.Width),
			strconv.Itoa(widget.Size.Height),
			strconv.FormatBool(widget.Visible),
			settings,
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeCSV rebuilds a document payload from encodeCSV output. Every
// malformed cell is reported; decoding continues past bad rows.
func decodeCSV(data []byte) (map[string]any, []string) {
	var (
		issues []string
		body   bytes.Buffer
	)
	payload := map[string]any{}
	metadata := map[string]any{}
	inHeader := true

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if inHeader && strings.HasPrefix(line, "#") {
			key, value, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "#")), ":")
			if !ok {
				continue
			}
			applyCSVComment(payload, metadata, strings.TrimSpace(key), strings.TrimSpace(value), &issues)
			continue
		}
		inHeader = false
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, []string{fmt.Sprintf("read csv: %v", err)}
	}
	payload["metadata"] = metadata

	reader := csv.NewReader(&body)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, []string{"csv: missing header row"}
		}
		return nil, []string{fmt.Sprintf("csv header: %v", err)}
	}
	columns := map[string]int{}
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"id", "type", "width", "height"} {
		if _, ok := columns[required]; !ok {
			issues = append(issues, fmt.Sprintf("csv: missing column %q", required))
		}
	}
	if len(issues) > 0 {
		return nil, issues
	}

	widgets := []any{}
	for row := 2; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			issues = append(issues, fmt.Sprintf("csv row %d: %v", row, err))
			continue
		}
		widget, rowIssues := csvWidget(columns, record, row)
		issues = append(issues, rowIssues...)
		if widget != nil {
			widgets = append(widgets, widget)
		}
	}
	payload["widgets"] = widgets
	return payload, issues
}

func applyCSVComment(payload, metadata map[string]any, key, value string, issues *[]string) {
	switch key {
	case "id":
		payload["id"] = value
	case "ruleOrder":
		order := []any{}
		for _, id := range strings.Split(value, "|") {
			if id = strings.TrimSpace(id); id != "" {
				order = append(order, id)
			}
		}
		payload["ruleOrder"] = order
	case "schemaVersion", "version":
		n, err := strconv.Atoi(value)
		if err != nil {
			*issues = append(*issues, fmt.Sprintf("csv: %s %q is not a number", key, value))
			return
		}
		metadata[key] = n
	case "name", "updatedBy":
		if value != "" {
			metadata[key] = value
		}
	case "updatedAt":
		metadata[key] = value
	}
}

func csvWidget(columns map[string]int, record []string, row int) (map[string]any, []string) {
	var issues []string
	cell := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}
	number := func(name string) int {
		value := cell(name)
		if value == "" {
			return 0
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			issues = append(issues, fmt.Sprintf("csv row %d: %s %q is not a number", row, name, value))
		}
		return n
	}

	visible := true
	if raw := cell("visible"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			issues = append(issues, fmt.Sprintf("csv row %d: visible %q is not a boolean", row, raw))
		}
		visible = parsed
	}

	widget := map[string]any{
		"id":       cell("id"),
		"type":     cell("type"),
		"position": map[string]any{"x": number("x"), "y": number("y")},
		"size":     map[string]any{"width": number("width"), "height": number("height")},
		"visible":  visible,
	}
	if raw := cell("settings"); raw != "" && raw != "{}" {
		var settings map[string]any
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			issues = append(issues, fmt.Sprintf("csv row %d: settings: %v", row, err))
		} else {
			widget["settings"] = settings
		}
	}
	if len(issues) > 0 {
		return nil, issues
	}
	return widget, nil
}
