// Package backend defines the remote layout store consumed by the
// persistence coordinator, plus an in-memory implementation for tests and
// examples.
package backend

import (
	"context"
	"errors"
	"time"

	layout "github.com/goliatone/go-layout"
	"github.com/goliatone/go-layout/pkg/exchange"
)

var (
	ErrNotFound        = errors.New("backend: not found")
	ErrVersionConflict = errors.New("backend: version conflict")
)

// Snapshot is a named copy of a document kept outside the live timeline.
type Snapshot struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Layout      layout.Document `json:"layout"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// SnapshotInput is the payload for SaveSnapshot.
type SnapshotInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Layout      layout.Document `json:"layout"`
}

// ImportOptions controls ImportLayout. Replace adopts the caller's current
// layout identity so the result can be saved over it; otherwise the import
// is kept as a snapshot. Validate enables rule checks on top of the schema.
type ImportOptions struct {
	Replace  bool `json:"replace"`
	Validate bool `json:"validate"`
}

// ImportResult reports an import. Errors is set when Success is false.
type ImportResult struct {
	Success bool             `json:"success"`
	Layout  *layout.Document `json:"layout,omitempty"`
	Errors  []string         `json:"errors,omitempty"`
}

// Backend is the remote store. GetLayout returns (nil, nil) when the user
// has no layout yet. SaveLayout rejects documents whose version is behind
// the stored one with ErrVersionConflict and returns the stored result,
// carrying the backend-assigned version.
type Backend interface {
	GetLayout(ctx context.Context, userID string) (*layout.Document, error)
	SaveLayout(ctx context.Context, userID string, doc layout.Document) (layout.Document, error)
	SaveSnapshot(ctx context.Context, userID string, input SnapshotInput) (Snapshot, error)
	GetSnapshots(ctx context.Context, userID string) ([]Snapshot, error)
	ApplyTemplate(ctx context.Context, userID, templateID string) (layout.Document, error)
	ExportLayout(ctx context.Context, userID, layoutID string, opts exchange.ExportOptions) (exchange.Blob, error)
	ImportLayout(ctx context.Context, userID string, file exchange.File, opts ImportOptions) (ImportResult, error)
}
