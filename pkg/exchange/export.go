package exchange

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"

	layout "github.com/goliatone/go-layout"
)

// Generator is written into export headers.
const Generator = "go-layout"

// Header describes an export.
type Header struct {
	Generator     string    `json:"generator" yaml:"generator"`
	ExportedAt    time.Time `json:"exportedAt" yaml:"exportedAt"`
	SchemaVersion int       `json:"schemaVersion" yaml:"schemaVersion"`
}

// Envelope is the structured export shape for json and yaml.
type Envelope struct {
	Export  *Header         `json:"export,omitempty" yaml:"export,omitempty"`
	Layout  layout.Document `json:"layout" yaml:"layout"`
	History []Revision      `json:"history,omitempty" yaml:"history,omitempty"`
}

// Export encodes doc. Without IncludeMetadata the header is omitted and the
// document metadata is reduced to its schema version.
func Export(doc layout.Document, history []Revision, opts ExportOptions) (Blob, error) {
	format := opts.Format
	if format == "" {
		format = FormatJSON
	}

	doc = doc.Clone()
	envelope := Envelope{Layout: doc}
	if opts.IncludeMetadata {
		stamp := opts.Timestamp
		if stamp.IsZero() {
			stamp = time.Now()
		}
		envelope.Export = &Header{
			Generator:     Generator,
			ExportedAt:    stamp.UTC(),
			SchemaVersion: doc.Metadata.SchemaVersion,
		}
	} else {
		envelope.Layout.Metadata = layout.Metadata{SchemaVersion: doc.Metadata.SchemaVersion}
	}
	if opts.IncludeHistory {
		envelope.History = append([]Revision(nil), history...)
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(envelope, "", "  ")
	case FormatYAML:
		data, err = yaml.Marshal(envelope)
	case FormatCSV:
		data, err = encodeCSV(envelope)
	default:
		return Blob{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return Blob{}, fmt.Errorf("exchange: encode %s: %w", format, err)
	}

	blob := Blob{
		Filename:    exportFilename(doc, format),
		ContentType: format.ContentType(),
		Data:        data,
	}
	if opts.Compress {
		compressed, err := compress(data)
		if err != nil {
			return Blob{}, err
		}
		blob.Data = compressed
		blob.Filename += ".gz"
		blob.ContentType = gzipContentType
	}
	return blob, nil
}

func exportFilename(doc layout.Document, format Format) string {
	id := doc.ID
	if id == "" {
		id = "layout"
	}
	return fmt.Sprintf("%s-v%d.%s", id, doc.Metadata.Version, format.Extension())
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("exchange: gzip: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("exchange: gzip: %w", err)
	}
	return buf.Bytes(), nil
}
