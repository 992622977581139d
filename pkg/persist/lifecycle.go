package persist

import (
	"context"
	"errors"
	"fmt"

	layout "github.com/goliatone/go-layout"
	"github.com/goliatone/go-layout/pkg/activity"
	"github.com/goliatone/go-layout/pkg/backend"
	"github.com/goliatone/go-layout/pkg/exchange"
	"github.com/goliatone/go-layout/pkg/migrate"
)

// CreateSnapshot stores a named copy of the working document. The live
// document and its version are untouched.
func (c *Coordinator) CreateSnapshot(ctx context.Context, name, description string) (backend.Snapshot, error) {
	doc, ok := c.store.Document()
	if !ok {
		return backend.Snapshot{}, layout.ErrNoDocument
	}
	snap, err := c.backend.SaveSnapshot(ctx, c.userID, backend.SnapshotInput{
		Name:        name,
		Description: description,
		Layout:      doc,
	})
	if err != nil {
		return backend.Snapshot{}, fmt.Errorf("persist: create snapshot: %w", err)
	}
	c.emit(ctx, activity.VerbSnapshotCreated, activity.LayoutEventInput{
		LayoutID:   doc.ID,
		SnapshotID: snap.ID,
		Version:    doc.Metadata.Version,
		Metadata:   map[string]any{"name": snap.Name},
	})
	return snap, nil
}

// ListSnapshots returns the user's snapshots as ordered by the backend.
func (c *Coordinator) ListSnapshots(ctx context.Context) ([]backend.Snapshot, error) {
	snaps, err := c.backend.GetSnapshots(ctx, c.userID)
	if err != nil {
		return nil, fmt.Errorf("persist: list snapshots: %w", err)
	}
	return snaps, nil
}

// RestoreSnapshot loads the snapshot's document and saves it.
func (c *Coordinator) RestoreSnapshot(ctx context.Context, snapshotID string) (layout.Document, error) {
	c.autosave.Cancel()
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if err := c.guard(); err != nil {
		return layout.Document{}, err
	}

	snaps, err := c.backend.GetSnapshots(ctx, c.userID)
	if err != nil {
		return layout.Document{}, fmt.Errorf("persist: restore snapshot: %w", err)
	}
	var found *backend.Snapshot
	for i := range snaps {
		if snaps[i].ID == snapshotID {
			found = &snaps[i]
			break
		}
	}
	if found == nil {
		return layout.Document{}, fmt.Errorf("%w: %q", ErrSnapshotNotFound, snapshotID)
	}

	saved, err := c.replace(ctx, found.Layout, "restore_snapshot")
	if err != nil {
		return layout.Document{}, err
	}
	c.emit(ctx, activity.VerbSnapshotRestored, activity.LayoutEventInput{
		LayoutID:   saved.ID,
		SnapshotID: found.ID,
		Version:    saved.Metadata.Version,
	})
	return saved, nil
}

// ApplyTemplate fetches a template-derived document, loads it and saves it.
func (c *Coordinator) ApplyTemplate(ctx context.Context, templateID string) (layout.Document, error) {
	c.autosave.Cancel()
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if err := c.guard(); err != nil {
		return layout.Document{}, err
	}

	doc, err := c.backend.ApplyTemplate(ctx, c.userID, templateID)
	if err != nil {
		return layout.Document{}, fmt.Errorf("persist: apply template %q: %w", templateID, err)
	}
	saved, err := c.replace(ctx, doc, "apply_template")
	if err != nil {
		return layout.Document{}, err
	}
	c.emit(ctx, activity.VerbTemplateApplied, activity.LayoutEventInput{
		LayoutID:   saved.ID,
		TemplateID: templateID,
		Version:    saved.Metadata.Version,
	})
	return saved, nil
}

// MigrateLayout upgrades the working document from one schema version to
// another, loads the result and saves it.
func (c *Coordinator) MigrateLayout(ctx context.Context, from, to int) (migrate.Report, error) {
	c.autosave.Cancel()
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if err := c.guard(); err != nil {
		return migrate.Report{From: from, To: to}, err
	}

	doc, ok := c.store.Document()
	if !ok {
		return migrate.Report{From: from, To: to}, layout.ErrNoDocument
	}
	migrated, report, err := c.cfg.migrator.Migrate(doc, from, to)
	if err != nil {
		return report, fmt.Errorf("persist: migrate layout: %w", err)
	}
	saved, err := c.replace(ctx, migrated, "migrate")
	if err != nil {
		return report, err
	}
	c.emit(ctx, activity.VerbLayoutMigrated, activity.LayoutEventInput{
		LayoutID:    saved.ID,
		Version:     saved.Metadata.Version,
		FromVersion: from,
		ToVersion:   to,
		Metadata:    map[string]any{"applied": report.Applied},
	})
	return report, nil
}

// ExportLayout asks the backend to encode the current layout. When the
// backend has nothing stored yet the working document is encoded locally.
func (c *Coordinator) ExportLayout(ctx context.Context, opts exchange.ExportOptions) (exchange.Blob, error) {
	doc, ok := c.store.Document()
	if !ok {
		return exchange.Blob{}, layout.ErrNoDocument
	}
	if opts.Timestamp.IsZero() {
		opts.Timestamp = c.cfg.now()
	}

	blob, err := c.backend.ExportLayout(ctx, c.userID, doc.ID, opts)
	if errors.Is(err, backend.ErrNotFound) {
		blob, err = exchange.Export(doc, nil, opts)
	}
	if err != nil {
		return exchange.Blob{}, fmt.Errorf("persist: export layout: %w", err)
	}
	c.emit(ctx, activity.VerbLayoutExported, activity.LayoutEventInput{
		LayoutID: doc.ID,
		Version:  doc.Metadata.Version,
		Format:   string(opts.Format),
	})
	return blob, nil
}

// ImportLayout validates file locally and hands it to the backend. Invalid
// files are reported through the result without touching the store or the
// backend. With replace the imported document becomes the working document
// and is saved; otherwise the backend keeps it as a snapshot.
func (c *Coordinator) ImportLayout(ctx context.Context, file exchange.File, replace bool) (backend.ImportResult, error) {
	if _, err := c.cfg.importer.Decode(file); err != nil {
		issues := exchange.Issues(err)
		if len(issues) == 0 {
			return backend.ImportResult{}, fmt.Errorf("persist: import layout: %w", err)
		}
		c.emit(ctx, activity.VerbLayoutImportFailed, activity.LayoutEventInput{
			Err:      err,
			Metadata: map[string]any{"filename": file.Name, "issues": len(issues)},
		})
		return backend.ImportResult{Success: false, Errors: issues}, nil
	}

	if replace {
		c.autosave.Cancel()
		c.saveMu.Lock()
		defer c.saveMu.Unlock()
		if err := c.guard(); err != nil {
			return backend.ImportResult{}, err
		}
	}

	result, err := c.backend.ImportLayout(ctx, c.userID, file, backend.ImportOptions{Replace: replace, Validate: true})
	if err != nil {
		return backend.ImportResult{}, fmt.Errorf("persist: import layout: %w", err)
	}
	if !result.Success {
		c.emit(ctx, activity.VerbLayoutImportFailed, activity.LayoutEventInput{
			Metadata: map[string]any{"filename": file.Name, "issues": len(result.Errors)},
		})
		return result, nil
	}

	if replace && result.Layout != nil {
		saved, err := c.replace(ctx, *result.Layout, "import")
		if err != nil {
			return backend.ImportResult{}, err
		}
		result.Layout = &saved
	}
	input := activity.LayoutEventInput{Metadata: map[string]any{"filename": file.Name, "replace": replace}}
	if result.Layout != nil {
		input.LayoutID = result.Layout.ID
		input.Version = result.Layout.Metadata.Version
	}
	c.emit(ctx, activity.VerbLayoutImported, input)
	return result, nil
}
