// Package exchange encodes layout documents for export and decodes, migrates
// and validates uploaded layout files for import.
package exchange

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Format names an export/import encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

const gzipContentType = "application/gzip"

// ParseFormat accepts json, yaml/yml and csv in any case.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, value)
	}
}

// ContentType returns the MIME type for the uncompressed encoding.
func (f Format) ContentType() string {
	switch f {
	case FormatYAML:
		return "application/yaml"
	case FormatCSV:
		return "text/csv"
	default:
		return "application/json"
	}
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	if f == "" {
		return string(FormatJSON)
	}
	return string(f)
}

// ExportOptions mirrors the backend export contract.
type ExportOptions struct {
	Format          Format
	IncludeMetadata bool
	IncludeHistory  bool
	Compress        bool
	// Timestamp stamps the export header; zero means now.
	Timestamp time.Time
}

// Blob is an encoded export.
type Blob struct {
	Filename    string
	ContentType string
	Data        []byte
}

// File is an uploaded import candidate.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Revision is one saved version of a document, exported when history is requested.
type Revision struct {
	Version   int       `json:"version" yaml:"version"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty" yaml:"updatedBy,omitempty"`
	Widgets   int       `json:"widgets" yaml:"widgets"`
}

// detectFormat picks the format from the file name, then the content type,
// then the first significant byte of data.
func detectFormat(name, contentType string, data []byte) Format {
	base := strings.TrimSuffix(strings.ToLower(name), ".gz")
	if ext := strings.TrimPrefix(path.Ext(base), "."); ext != "" {
		if format, err := ParseFormat(ext); err == nil {
			return format
		}
	}

	contentType = strings.ToLower(contentType)
	switch {
	case strings.Contains(contentType, "json"):
		return FormatJSON
	case strings.Contains(contentType, "yaml"):
		return FormatYAML
	case strings.Contains(contentType, "csv"):
		return FormatCSV
	}

	trimmed := strings.TrimSpace(string(data))
	switch {
	case strings.HasPrefix(trimmed, "{"):
		return FormatJSON
	case strings.HasPrefix(trimmed, "#"), strings.HasPrefix(trimmed, csvHeaderPrefix):
		return FormatCSV
	default:
		return FormatYAML
	}
}
