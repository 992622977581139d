package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	layout "github.com/goliatone/go-layout"
	"github.com/goliatone/go-layout/pkg/exchange"
)

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithMemoryClock overrides time.Now.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(b *MemoryBackend) {
		if now != nil {
			b.now = now
		}
	}
}

// WithMemoryIDGenerator overrides uuid generation for layout and snapshot IDs.
func WithMemoryIDGenerator(next func() string) MemoryOption {
	return func(b *MemoryBackend) {
		if next != nil {
			b.newID = next
		}
	}
}

// WithMemoryImporter sets the importer used by ImportLayout.
func WithMemoryImporter(importer *exchange.Importer) MemoryOption {
	return func(b *MemoryBackend) {
		if importer != nil {
			b.importer = importer
		}
	}
}

// WithMemoryLogger attaches a logger.
func WithMemoryLogger(logger layout.Logger) MemoryOption {
	return func(b *MemoryBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTemplate registers a template at construction.
func WithTemplate(id string, doc layout.Document) MemoryOption {
	return func(b *MemoryBackend) {
		b.templates[id] = doc.Clone()
	}
}

// MemoryBackend keeps one layout per user with a revision log and snapshot
// list. It enforces optimistic versioning the way a real server would.
type MemoryBackend struct {
	mu        sync.RWMutex
	users     map[string]*userRecord
	templates map[string]layout.Document

	now      func() time.Time
	newID    func() string
	importer *exchange.Importer
	lenient  *exchange.Importer
	logger   layout.Logger
}

type userRecord struct {
	layout    *layout.Document
	revisions []exchange.Revision
	snapshots []Snapshot
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{
		users:     map[string]*userRecord{},
		templates: map[string]layout.Document{},
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    layout.NopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.importer == nil {
		b.importer = exchange.NewImporter(exchange.WithImportLogger(b.logger))
	}
	b.lenient = exchange.NewImporter(exchange.WithRules(), exchange.WithImportLogger(b.logger))
	return b
}

// RegisterTemplate adds or replaces a template.
func (b *MemoryBackend) RegisterTemplate(id string, doc layout.Document) {
	b.mu.Lock()
	b.templates[id] = doc.Clone()
	b.mu.Unlock()
}

// Put stores doc for userID as-is, bypassing version checks. Tests use it to
// simulate writes from another session.
func (b *MemoryBackend) Put(userID string, doc layout.Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.record(userID)
	stored := doc.Clone()
	stored.UserID = userID
	rec.layout = &stored
	rec.revisions = append(rec.revisions, revisionOf(stored))
}

// Revisions returns the save log for userID.
func (b *MemoryBackend) Revisions(userID string) []exchange.Revision {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.users[userID]
	if !ok {
		return nil
	}
	return append([]exchange.Revision(nil), rec.revisions...)
}

func (b *MemoryBackend) GetLayout(ctx context.Context, userID string) (*layout.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.users[userID]
	if !ok || rec.layout == nil {
		return nil, nil
	}
	out := rec.layout.Clone()
	return &out, nil
}

func (b *MemoryBackend) SaveLayout(ctx context.Context, userID string, doc layout.Document) (layout.Document, error) {
	if err := ctx.Err(); err != nil {
		return layout.Document{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.record(userID)
	stored := doc.Clone()
	stored.UserID = userID
	next := 1
	if rec.layout != nil {
		current := rec.layout.Metadata.Version
		if doc.Metadata.Version < current {
			return layout.Document{}, fmt.Errorf("%w: saving version %d over %d", ErrVersionConflict, doc.Metadata.Version, current)
		}
		next = current + 1
		if stored.ID == "" {
			stored.ID = rec.layout.ID
		}
	}
	if stored.ID == "" {
		stored.ID = b.newID()
	}
	stored.Metadata.Version = next
	stored.Metadata.UpdatedAt = b.now().UTC()
	stored.Metadata.UpdatedBy = userID

	rec.layout = &stored
	rec.revisions = append(rec.revisions, revisionOf(stored))
	b.logger.LogLayout(layout.LogEvent{Component: "backend.memory", Action: "save", LayoutID: stored.ID, Version: next})
	return stored.Clone(), nil
}

func (b *MemoryBackend) SaveSnapshot(ctx context.Context, userID string, input SnapshotInput) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	if input.Name == "" {
		return Snapshot{}, fmt.Errorf("backend: snapshot name is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := Snapshot{
		ID:          b.newID(),
		Name:        input.Name,
		Description: input.Description,
		Layout:      input.Layout.Clone(),
		CreatedAt:   b.now().UTC(),
	}
	rec := b.record(userID)
	rec.snapshots = append(rec.snapshots, snap)
	return cloneSnapshot(snap), nil
}

// GetSnapshots returns snapshots newest first.
func (b *MemoryBackend) GetSnapshots(ctx context.Context, userID string) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.users[userID]
	if !ok {
		return []Snapshot{}, nil
	}
	out := make([]Snapshot, len(rec.snapshots))
	for i, snap := range rec.snapshots {
		out[i] = cloneSnapshot(snap)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ApplyTemplate returns the template contents dressed in the user's layout
// identity. Nothing is stored until the caller saves it.
func (b *MemoryBackend) ApplyTemplate(ctx context.Context, userID, templateID string) (layout.Document, error) {
	if err := ctx.Err(); err != nil {
		return layout.Document{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	tmpl, ok := b.templates[templateID]
	if !ok {
		return layout.Document{}, fmt.Errorf("%w: template %q", ErrNotFound, templateID)
	}
	return b.adopt(userID, tmpl), nil
}

func (b *MemoryBackend) ExportLayout(ctx context.Context, userID, layoutID string, opts exchange.ExportOptions) (exchange.Blob, error) {
	if err := ctx.Err(); err != nil {
		return exchange.Blob{}, err
	}
	b.mu.RLock()
	rec, ok := b.users[userID]
	if !ok || rec.layout == nil || (layoutID != "" && rec.layout.ID != layoutID) {
		b.mu.RUnlock()
		return exchange.Blob{}, fmt.Errorf("%w: layout %q", ErrNotFound, layoutID)
	}
	doc := rec.layout.Clone()
	revisions := append([]exchange.Revision(nil), rec.revisions...)
	b.mu.RUnlock()

	if opts.Timestamp.IsZero() {
		opts.Timestamp = b.now()
	}
	return exchange.Export(doc, revisions, opts)
}

// ImportLayout validates file. Content problems are reported in the result,
// not as an error.
func (b *MemoryBackend) ImportLayout(ctx context.Context, userID string, file exchange.File, opts ImportOptions) (ImportResult, error) {
	if err := ctx.Err(); err != nil {
		return ImportResult{}, err
	}
	importer := b.lenient
	if opts.Validate {
		importer = b.importer
	}
	doc, err := importer.Decode(file)
	if err != nil {
		if errors.Is(err, exchange.ErrInvalidImport) {
			return ImportResult{Success: false, Errors: exchange.Issues(err)}, nil
		}
		return ImportResult{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if opts.Replace {
		doc = b.adopt(userID, doc)
	} else {
		doc.UserID = userID
		doc.ID = b.newID()
		rec := b.record(userID)
		name := file.Name
		if name == "" {
			name = doc.ID
		}
		rec.snapshots = append(rec.snapshots, Snapshot{
			ID:          b.newID(),
			Name:        "Imported " + name,
			Description: "imported file",
			Layout:      doc.Clone(),
			CreatedAt:   b.now().UTC(),
		})
	}
	return ImportResult{Success: true, Layout: &doc}, nil
}

// adopt copies src under the user's current layout ID and version. Callers
// hold b.mu.
func (b *MemoryBackend) adopt(userID string, src layout.Document) layout.Document {
	doc := src.Clone()
	doc.UserID = userID
	doc.Metadata.Version = 0
	doc.Metadata.SchemaVersion = layout.CurrentSchemaVersion
	if rec, ok := b.users[userID]; ok && rec.layout != nil {
		doc.ID = rec.layout.ID
		doc.Metadata.Version = rec.layout.Metadata.Version
	}
	return doc
}

func (b *MemoryBackend) record(userID string) *userRecord {
	rec, ok := b.users[userID]
	if !ok {
		rec = &userRecord{}
		b.users[userID] = rec
	}
	return rec
}

func revisionOf(doc layout.Document) exchange.Revision {
	return exchange.Revision{
		Version:   doc.Metadata.Version,
		UpdatedAt: doc.Metadata.UpdatedAt,
		UpdatedBy: doc.Metadata.UpdatedBy,
		Widgets:   len(doc.Widgets),
	}
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := s
	out.Layout = s.Layout.Clone()
	return out
}
