package activity

import (
	"strings"
	"time"
)

// Layout lifecycle verbs.
const (
	VerbLayoutLoaded       = "layout.loaded"
	VerbLayoutSaved        = "layout.saved"
	VerbLayoutSaveFailed   = "layout.save_failed"
	VerbConflictDetected   = "layout.conflict_detected"
	VerbConflictResolved   = "layout.conflict_resolved"
	VerbSnapshotCreated    = "layout.snapshot.created"
	VerbSnapshotRestored   = "layout.snapshot.restored"
	VerbTemplateApplied    = "layout.template.applied"
	VerbLayoutMigrated     = "layout.migrated"
	VerbLayoutImported     = "layout.imported"
	VerbLayoutImportFailed = "layout.import_failed"
	VerbLayoutExported     = "layout.exported"
)

const (
	ObjectLayout   = "layout"
	ObjectSnapshot = "layout.snapshot"
)

// LayoutEventInput holds the fields layout events may carry. Zero values are
// left out of the event metadata.
type LayoutEventInput struct {
	ActorID    string
	UserID     string
	TenantID   string
	LayoutID   string
	SnapshotID string
	TemplateID string
	Channel    string

	Version       int
	ServerVersion int
	FromVersion   int
	ToVersion     int
	Strategy      string
	Format        string
	Err           error
	Metadata      map[string]any
	OccurredAt    time.Time
}

// BuildLayoutEvent constructs the event for verb. Snapshot verbs use the
// snapshot as object; everything else targets the layout.
func BuildLayoutEvent(verb string, input LayoutEventInput) Event {
	metadata := cloneMap(input.Metadata)
	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}
	if input.Version != 0 {
		set("version", input.Version)
	}
	if input.ServerVersion != 0 {
		set("server_version", input.ServerVersion)
	}
	if input.FromVersion != 0 || input.ToVersion != 0 {
		set("from_version", input.FromVersion)
		set("to_version", input.ToVersion)
	}
	if input.Strategy != "" {
		set("strategy", input.Strategy)
	}
	if input.Format != "" {
		set("format", input.Format)
	}
	if input.TemplateID != "" {
		set("template_id", input.TemplateID)
	}
	if input.Err != nil {
		set("error", input.Err.Error())
	}

	objectType := ObjectLayout
	objectID := strings.TrimSpace(input.LayoutID)
	if strings.HasPrefix(verb, ObjectSnapshot+".") {
		objectType = ObjectSnapshot
		if input.LayoutID != "" {
			set("layout_id", input.LayoutID)
		}
		objectID = strings.TrimSpace(input.SnapshotID)
	} else if input.SnapshotID != "" {
		set("snapshot_id", input.SnapshotID)
	}
	if objectID == "" {
		objectID = objectType
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}
