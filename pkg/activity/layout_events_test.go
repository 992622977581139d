package activity

import (
	"context"
	"errors"
	"testing"
)

func TestBuildLayoutEventCarriesVersions(t *testing.T) {
	meta := map[string]any{"source": "autosave"}
	event := BuildLayoutEvent(VerbConflictResolved, LayoutEventInput{
		UserID:        " u1 ",
		LayoutID:      "dash-1",
		Version:       6,
		ServerVersion: 5,
		Strategy:      "merge",
		Metadata:      meta,
	})

	if event.Verb != VerbConflictResolved || event.ObjectType != ObjectLayout || event.ObjectID != "dash-1" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.UserID != "u1" {
		t.Fatalf("expected trimmed user, got %q", event.UserID)
	}
	if event.Metadata["version"] != 6 || event.Metadata["server_version"] != 5 || event.Metadata["strategy"] != "merge" {
		t.Fatalf("unexpected metadata %+v", event.Metadata)
	}
	if event.Metadata["source"] != "autosave" {
		t.Fatalf("expected caller metadata kept")
	}
	if len(meta) != 1 {
		t.Fatalf("input metadata must not be modified")
	}
}

func TestBuildLayoutEventSnapshotObject(t *testing.T) {
	event := BuildLayoutEvent(VerbSnapshotCreated, LayoutEventInput{LayoutID: "dash-1", SnapshotID: "snap-9"})
	if event.ObjectType != ObjectSnapshot || event.ObjectID != "snap-9" {
		t.Fatalf("unexpected object fields: %+v", event)
	}
	if event.Metadata["layout_id"] != "dash-1" {
		t.Fatalf("expected layout id metadata, got %+v", event.Metadata)
	}

	restored := BuildLayoutEvent(VerbLayoutSaved, LayoutEventInput{LayoutID: "dash-1", SnapshotID: "snap-9"})
	if restored.ObjectType != ObjectLayout || restored.Metadata["snapshot_id"] != "snap-9" {
		t.Fatalf("unexpected layout event: %+v", restored)
	}
}

func TestBuildLayoutEventFallbacks(t *testing.T) {
	event := BuildLayoutEvent(VerbLayoutSaveFailed, LayoutEventInput{Err: errors.New("offline")})
	if event.ObjectID != ObjectLayout {
		t.Fatalf("expected fallback object id, got %q", event.ObjectID)
	}
	if event.Metadata["error"] != "offline" {
		t.Fatalf("expected error metadata, got %+v", event.Metadata)
	}
	if empty := BuildLayoutEvent(VerbLayoutLoaded, LayoutEventInput{}); empty.Metadata != nil {
		t.Fatalf("expected no metadata, got %+v", empty.Metadata)
	}
}

func TestBuildLayoutEventMigrationRange(t *testing.T) {
	event := BuildLayoutEvent(VerbLayoutMigrated, LayoutEventInput{LayoutID: "d", FromVersion: 1, ToVersion: 3})
	if event.Metadata["from_version"] != 1 || event.Metadata["to_version"] != 3 {
		t.Fatalf("unexpected metadata %+v", event.Metadata)
	}

	capture := &CaptureHook{}
	if err := (Hooks{capture}).Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if verbs := capture.Verbs(); len(verbs) != 1 || verbs[0] != VerbLayoutMigrated {
		t.Fatalf("unexpected verbs %v", verbs)
	}
}
