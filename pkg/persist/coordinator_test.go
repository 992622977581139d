package persist

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	layout "github.com/goliatone/go-layout"
	"github.com/goliatone/go-layout/pkg/activity"
	"github.com/goliatone/go-layout/pkg/backend"
	"github.com/goliatone/go-layout/pkg/exchange"
)

const testUser = "u1"

// fakeBackend counts calls over a MemoryBackend and can fail on demand.
type fakeBackend struct {
	*backend.MemoryBackend

	mu        sync.Mutex
	saves     int
	imports   int
	lastSaved layout.Document
	saveErr   error
	getErr    error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{MemoryBackend: backend.NewMemoryBackend()}
}

func (f *fakeBackend) GetLayout(ctx context.Context, userID string) (*layout.Document, error) {
	f.mu.Lock()
	err := f.getErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.MemoryBackend.GetLayout(ctx, userID)
}

func (f *fakeBackend) SaveLayout(ctx context.Context, userID string, doc layout.Document) (layout.Document, error) {
	f.mu.Lock()
	f.saves++
	f.lastSaved = doc.Clone()
	err := f.saveErr
	f.saveErr = nil
	f.mu.Unlock()
	if err != nil {
		return layout.Document{}, err
	}
	return f.MemoryBackend.SaveLayout(ctx, userID, doc)
}

func (f *fakeBackend) ImportLayout(ctx context.Context, userID string, file exchange.File, opts backend.ImportOptions) (backend.ImportResult, error) {
	f.mu.Lock()
	f.imports++
	f.mu.Unlock()
	return f.MemoryBackend.ImportLayout(ctx, userID, file, opts)
}

func (f *fakeBackend) failNextSave(err error) {
	f.mu.Lock()
	f.saveErr = err
	f.mu.Unlock()
}

func (f *fakeBackend) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func (f *fakeBackend) resetSaves() {
	f.mu.Lock()
	f.saves = 0
	f.mu.Unlock()
}

func (f *fakeBackend) lastSavedDoc() layout.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSaved.Clone()
}

func (f *fakeBackend) importCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.imports
}

func remoteDoc(version int) layout.Document {
	doc := layout.DefaultDocument()
	doc.ID = "layout-1"
	doc.Metadata.Version = version
	return doc
}

func newTestCoordinator(t *testing.T, fake *fakeBackend, opts ...Option) *Coordinator {
	t.Helper()
	base := []Option{WithAutosave(false)}
	c, err := New(layout.NewHistoryStore(), fake, testUser, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func mount(t *testing.T, c *Coordinator) {
	t.Helper()
	if err := c.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
}

func moveWidget(t *testing.T, store *layout.HistoryStore, id string, to int) {
	t.Helper()
	doc, _ := store.Document()
	op, err := layout.MoveWidget(doc, id, to)
	if err != nil {
		t.Fatalf("move widget: %v", err)
	}
	if err := store.Apply(op); err != nil {
		t.Fatalf("apply: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestNewRequiresDependencies(t *testing.T) {
	store := layout.NewHistoryStore()
	fake := newFakeBackend()
	if _, err := New(nil, fake, testUser); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := New(store, nil, testUser); err == nil {
		t.Fatalf("expected error without backend")
	}
	if _, err := New(store, fake, ""); err == nil {
		t.Fatalf("expected error without user")
	}
}

func TestMountLoadsRemoteDocument(t *testing.T) {
	fake := newFakeBackend()
	fake.Put(testUser, remoteDoc(3))
	var loaded layout.Document
	c := newTestCoordinator(t, fake, OnLoadSuccess(func(doc layout.Document) { loaded = doc }))
	mount(t, c)

	doc, ok := c.Store().Document()
	if !ok || doc.ID != "layout-1" || doc.Metadata.Version != 3 {
		t.Fatalf("unexpected loaded document %+v", doc)
	}
	if c.LastSyncedVersion() != 3 {
		t.Fatalf("expected last synced 3, got %d", c.LastSyncedVersion())
	}
	if loaded.ID != "layout-1" {
		t.Fatalf("expected load callback, got %+v", loaded)
	}
	status := c.Status()
	if status.CurrentLayout == nil || status.CurrentLayout.Metadata.Version != 3 || status.IsDirty {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestMountWithoutRemoteLoadsDefault(t *testing.T) {
	c := newTestCoordinator(t, newFakeBackend())
	mount(t, c)

	doc, ok := c.Store().Document()
	if !ok || !doc.SameContent(layout.DefaultDocument()) {
		t.Fatalf("expected default layout, got %+v", doc)
	}
	if c.Store().IsDirty() || c.CurrentLayout() != nil || c.LastSyncedVersion() != 0 {
		t.Fatalf("default layout should be clean and unsynced: %+v", c.Status())
	}
}

func TestLoadFailureKeepsStoreAndReports(t *testing.T) {
	fake := newFakeBackend()
	fake.Put(testUser, remoteDoc(1))
	var reported error
	c := newTestCoordinator(t, fake, OnLoadError(func(err error) { reported = err }))
	mount(t, c)
	moveWidget(t, c.Store(), "overview", 2)
	before, _ := c.Store().Document()

	boom := errors.New("offline")
	fake.mu.Lock()
	fake.getErr = boom
	fake.mu.Unlock()

	if err := c.ResetToServer(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected offline error, got %v", err)
	}
	if !errors.Is(reported, boom) {
		t.Fatalf("expected error callback, got %v", reported)
	}
	after, _ := c.Store().Document()
	if !after.Equal(before) || !c.Store().IsDirty() {
		t.Fatalf("store changed after failed load")
	}
}

func TestAutosaveCoalescesRapidEdits(t *testing.T) {
	fake := newFakeBackend()
	c := newTestCoordinator(t, fake, WithAutosave(true), WithDebounce(40*time.Millisecond))
	mount(t, c)

	for width := 1; width <= 10; width++ {
		if err := c.Store().Apply(layout.WidgetResize{WidgetID: "chat", To: layout.Size{Width: width, Height: 3}}); err != nil {
			t.Fatalf("apply %d: %v", width, err)
		}
	}

	waitFor(t, time.Second, func() bool { return fake.saveCount() == 1 && !c.Store().IsDirty() })
	time.Sleep(120 * time.Millisecond)
	if got := fake.saveCount(); got != 1 {
		t.Fatalf("expected a single save, got %d", got)
	}
	saved := fake.lastSavedDoc()
	chat := saved.Widgets[saved.WidgetIndex("chat")]
	if chat.Size.Width != 10 {
		t.Fatalf("expected latest state in save, got width %d", chat.Size.Width)
	}
	if c.LastSyncedVersion() != 1 {
		t.Fatalf("expected version 1, got %d", c.LastSyncedVersion())
	}
}

func TestAutosaveIgnoresLoads(t *testing.T) {
	fake := newFakeBackend()
	fake.Put(testUser, remoteDoc(2))
	c := newTestCoordinator(t, fake, WithAutosave(true), WithDebounce(20*time.Millisecond))
	mount(t, c)
	if err := c.ResetToServer(context.Background()); err != nil {
		t.Fatalf("reset to server: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if got := fake.saveCount(); got != 0 {
		t.Fatalf("loads must not trigger autosave, got %d saves", got)
	}
}

func TestSaveFailureRollsBackAndKeepsDirty(t *testing.T) {
	fake := newFakeBackend()
	fake.Put(testUser, remoteDoc(1))
	var saveErr error
	c := newTestCoordinator(t, fake, OnSaveError(func(err error) { saveErr = err }))
	mount(t, c)
	moveWidget(t, c.Store(), "chat", 0)

	boom := errors.New("503")
	fake.failNextSave(boom)
	if err := c.SaveNow(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected save error, got %v", err)
	}

	status := c.Status()
	if !errors.Is(status.SaveError, boom) || !errors.Is(saveErr, boom) {
		t.Fatalf("expected surfaced error, got %v / %v", status.SaveError, saveErr)
	}
	if !status.IsDirty || status.IsSaving || !status.HasUnsavedChanges {
		t.Fatalf("edits must stay dirty after a failed save: %+v", status)
	}
	if status.LastSyncedVersion != 1 {
		t.Fatalf("failed save advanced version to %d", status.LastSyncedVersion)
	}
	if status.CurrentLayout == nil || !status.CurrentLayout.SameContent(remoteDoc(1)) {
		t.Fatalf("current layout not rolled back: %+v", status.CurrentLayout)
	}
	if status.LocalLayout == nil || status.LocalLayout.WidgetIDs()[0] != "chat" {
		t.Fatalf("local edits lost: %+v", status.LocalLayout)
	}

	if err := c.SaveNow(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	status = c.Status()
	if status.IsDirty || status.SaveError != nil || status.LastSyncedVersion != 2 {
		t.Fatalf("unexpected status after retry %+v", status)
	}
	if status.CurrentLayout.WidgetIDs()[0] != "chat" {
		t.Fatalf("cache not updated after retry")
	}
}

func TestEditDuringSaveStaysDirty(t *testing.T) {
	fake := newFakeBackend()
	c := newTestCoordinator(t, fake)
	mount(t, c)
	moveWidget(t, c.Store(), "chat", 0)

	doc, rev, _ := c.Store().Checkpoint()
	moveWidget(t, c.Store(), "alerts", 0)
	if clean := c.Store().MarkSynced(rev, doc.Metadata.Version+1); clean {
		t.Fatalf("edit after checkpoint must keep the store dirty")
	}
	if !c.HasUnsavedChanges() {
		t.Fatalf("expected unsaved changes")
	}
}

func TestConflictLocalStrategyScenario(t *testing.T) {
	fake := newFakeBackend()
	fake.Put(testUser, remoteDoc(3))
	c := newTestCoordinator(t, fake)
	mount(t, c)
	moveWidget(t, c.Store(), "quick-actions", 0)
	local, _ := c.Store().Document()

	other := remoteDoc(5)
	other.RuleOrder = []string{"info", "warning", "critical"}
	fake.Put(testUser, other)

	conflict, err := c.CheckForConflicts(context.Background())
	if err != nil || !conflict {
		t.Fatalf("expected conflict, got %v, %v", conflict, err)
	}
	got, ok := c.Conflict()
	if !ok || got.LocalVersion != 3 || got.ServerVersion != 5 {
		t.Fatalf("unexpected conflict %+v", got)
	}
	if err := c.SaveNow(context.Background()); !errors.Is(err, ErrConflictPending) {
		t.Fatalf("expected saves to be blocked, got %v", err)
	}

	fake.resetSaves()
	if err := c.ResolveConflict(context.Background(), StrategyLocal); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := fake.saveCount(); got != 1 {
		t.Fatalf("expected exactly one save, got %d", got)
	}
	saved := fake.lastSavedDoc()
	if !slices.Equal(saved.WidgetIDs(), local.WidgetIDs()) {
		t.Fatalf("local order not preserved: %v", saved.WidgetIDs())
	}
	if _, pending := c.Conflict(); pending {
		t.Fatalf("conflict not cleared")
	}
	if c.LastSyncedVersion() != 6 || c.Store().IsDirty() {
		t.Fatalf("unexpected state after resolve %+v", c.Status())
	}
}

func TestNoConflictWhenRemoteNotNewer(t *testing.T) {
	fake := newFakeBackend()
	fake.Put(testUser, remoteDoc(4))
	c := newTestCoordinator(t, fake)
	mount(t, c)
	conflict, err := c.CheckForConflicts(context.Background())
	if err != nil || conflict {
		t.Fatalf("expected no conflict, got %v, %v", conflict, err)
	}
}

func TestConflictMergeStrategy(t *testing.T) {
	fake := newFakeBackend()
	fake.Put(testUser, remoteDoc(3))
	c := newTestCoordinator(t, fake)
	mount(t, c)
	moveWidget(t, c.Store(), "chat", 0)
	if err := c.Store().Apply(layout.RuleReorder{After: []string{"info", "critical", "warning"}}); err != nil {
		t.Fatalf("rule reorder: %v", err)
	}
	local, _ := c.Store().Document()

	other := remoteDoc(5)
	other.Metadata.Name = "from another tab"
	fake.Put(testUser, other)
	if _, err := c.CheckForConflicts(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}

	fake.resetSaves()
	if err := c.ResolveConflict(context.Background(), StrategyMerge); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	saved := fake.lastSavedDoc()
	if fake.saveCount() != 1 {
		t.Fatalf("expected one save, got %d", fake.saveCount())
	}
	if saved.Metadata.Version != 6 {
		t.Fatalf("merge must send server version + 1, got %d", saved.Metadata.Version)
	}
	if !saved.SameContent(local) {
		t.Fatalf("merge lost local widgets or rules")
	}
	if saved.Metadata.Name != "from another tab" || saved.ID != "layout-1" {
		t.Fatalf("merge lost remote base: %+v", saved.Metadata)
	}
}

func TestConflictRemoteStrategyIsIdempotent(t *testing.T) {
	fake := newFakeBackend()
	fake.Put(testUser, remoteDoc(3))
	c := newTestCoordinator(t, fake)
	mount(t, c)
	moveWidget(t, c.Store(), "chat", 0)

	other := remoteDoc(5)
	other.RuleOrder = []string{"warning", "critical", "info"}
	fake.Put(testUser, other)
	if _, err := c.CheckForConflicts(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}

	ctx := context.Background()
	if err := c.ResolveConflict(ctx, StrategyRemote); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	first, _ := c.Store().Document()
	if !first.SameContent(other) {
		t.Fatalf("remote resolution did not adopt the remote document")
	}
	if err := c.ResolveConflict(ctx, StrategyRemote); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	second, _ := c.Store().Document()
	if !second.SameContent(first) {
		t.Fatalf("second remote resolution changed the document")
	}
	if c.Store().IsDirty() || c.Store().CanUndo() {
		t.Fatalf("remote resolution should leave a clean store without history")
	}
}

func TestResolveConflictFailedSaveKeepsConflict(t *testing.T) {
	for _, strategy := range []Strategy{StrategyLocal, StrategyRemote, StrategyMerge} {
		t.Run(string(strategy), func(t *testing.T) {
			fake := newFakeBackend()
			fake.Put(testUser, remoteDoc(3))
			c := newTestCoordinator(t, fake)
			mount(t, c)
			moveWidget(t, c.Store(), "chat", 0)

			fake.Put(testUser, remoteDoc(5))
			if found, err := c.CheckForConflicts(context.Background()); err != nil || !found {
				t.Fatalf("expected conflict, got %v %v", found, err)
			}

			fake.failNextSave(errors.New("offline"))
			if err := c.ResolveConflict(context.Background(), strategy); err == nil {
				t.Fatalf("expected resolve to fail")
			}
			if got := c.LastSyncedVersion(); got != 3 {
				t.Fatalf("failed resolve must not advance last synced, got %d", got)
			}
			if current := c.CurrentLayout(); current == nil || current.Metadata.Version != 3 {
				t.Fatalf("failed resolve must keep the cached copy, got %+v", current)
			}
			if _, pending := c.Conflict(); !pending {
				t.Fatalf("conflict must stay pending after a failed resolve")
			}
			if found, err := c.CheckForConflicts(context.Background()); err != nil || !found {
				t.Fatalf("recheck should still report the conflict, got %v %v", found, err)
			}
			if err := c.SaveNow(context.Background()); !errors.Is(err, ErrConflictPending) {
				t.Fatalf("expected ErrConflictPending, got %v", err)
			}

			if err := c.ResolveConflict(context.Background(), strategy); err != nil {
				t.Fatalf("retry resolve: %v", err)
			}
			if _, pending := c.Conflict(); pending {
				t.Fatalf("conflict should clear once the resolution is saved")
			}
			if got := c.LastSyncedVersion(); got <= 5 {
				t.Fatalf("expected version past the server's, got %d", got)
			}
		})
	}
}

func TestConflictMergeKeepsEmptyLocalRuleOrder(t *testing.T) {
	fake := newFakeBackend()
	base := remoteDoc(3)
	base.RuleOrder = nil
	fake.Put(testUser, base)
	c := newTestCoordinator(t, fake)
	mount(t, c)

	other := remoteDoc(5)
	other.RuleOrder = []string{"x", "y"}
	fake.Put(testUser, other)
	if _, err := c.CheckForConflicts(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := c.ResolveConflict(context.Background(), StrategyMerge); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := fake.lastSavedDoc().RuleOrder; len(got) != 0 {
		t.Fatalf("remote rule order leaked into merge: %v", got)
	}
	doc, _ := c.Store().Document()
	if len(doc.RuleOrder) != 0 {
		t.Fatalf("store picked up remote rule order: %v", doc.RuleOrder)
	}
}

func TestResolveConflictRejectsUnknownStrategy(t *testing.T) {
	c := newTestCoordinator(t, newFakeBackend())
	mount(t, c)
	if err := c.ResolveConflict(context.Background(), Strategy("theirs")); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
	if _, err := ParseStrategy(" Merge "); err != nil {
		t.Fatalf("parse merge: %v", err)
	}
	if _, err := ParseStrategy("mine"); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected parse failure, got %v", err)
	}
}

func TestSnapshotCreateAndRestore(t *testing.T) {
	fake := newFakeBackend()
	fake.Put(testUser, remoteDoc(1))
	c := newTestCoordinator(t, fake)
	mount(t, c)
	ctx := context.Background()

	original, _ := c.Store().Document()
	snap, err := c.CreateSnapshot(ctx, "before", "clean slate")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if fake.saveCount() != 0 || c.LastSyncedVersion() != 1 {
		t.Fatalf("snapshot must not save or bump the version")
	}

	moveWidget(t, c.Store(), "chat", 0)
	if err := c.SaveNow(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	snaps, err := c.ListSnapshots(ctx)
	if err != nil || len(snaps) != 1 || snaps[0].ID != snap.ID {
		t.Fatalf("unexpected snapshots %+v, %v", snaps, err)
	}

	restored, err := c.RestoreSnapshot(ctx, snap.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored.SameContent(original) || restored.Metadata.Version != 3 {
		t.Fatalf("unexpected restored doc %+v", restored)
	}
	current, _ := c.Store().Document()
	if !current.SameContent(original) || c.Store().IsDirty() {
		t.Fatalf("store not restored")
	}

	if _, err := c.RestoreSnapshot(ctx, "missing"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestApplyTemplateLoadsAndSaves(t *testing.T) {
	fake := newFakeBackend()
	fake.Put(testUser, remoteDoc(2))
	minimal := layout.Document{
		Widgets: []layout.Widget{
			{ID: "overview", Type: "stats", Size: layout.Size{Width: 12, Height: 2}, Visible: true},
		},
		RuleOrder: []string{"critical"},
	}
	fake.RegisterTemplate("minimal", minimal)
	c := newTestCoordinator(t, fake)
	mount(t, c)

	saved, err := c.ApplyTemplate(context.Background(), "minimal")
	if err != nil {
		t.Fatalf("apply template: %v", err)
	}
	if !saved.SameContent(minimal) || saved.ID != "layout-1" || saved.Metadata.Version != 3 {
		t.Fatalf("unexpected template result %+v", saved)
	}
	if _, err := c.ApplyTemplate(context.Background(), "nope"); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMigrateLayoutChainsSteps(t *testing.T) {
	fake := newFakeBackend()
	legacy := remoteDoc(1)
	legacy.Metadata.SchemaVersion = 1
	fake.Put(testUser, legacy)
	c := newTestCoordinator(t, fake)
	mount(t, c)

	report, err := c.MigrateLayout(context.Background(), 1, layout.CurrentSchemaVersion)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(report.Applied) != 2 {
		t.Fatalf("expected two chained steps, got %v", report.Applied)
	}
	doc, _ := c.Store().Document()
	if doc.Metadata.SchemaVersion != layout.CurrentSchemaVersion || doc.Metadata.Version != 2 {
		t.Fatalf("unexpected migrated metadata %+v", doc.Metadata)
	}

	if _, err := c.MigrateLayout(context.Background(), 3, 1); err == nil {
		t.Fatalf("expected invalid range error")
	}
}

func TestImportMalformedFileLeavesStateUntouched(t *testing.T) {
	fake := newFakeBackend()
	fake.Put(testUser, remoteDoc(1))
	c := newTestCoordinator(t, fake)
	mount(t, c)
	before := c.CurrentLayout()

	result, err := c.ImportLayout(context.Background(), exchange.File{Name: "broken.json", Data: []byte(`{"widgets": [{"id": ""}]}`)}, true)
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	if result.Success || len(result.Errors) == 0 {
		t.Fatalf("expected validation errors, got %+v", result)
	}
	if fake.importCount() != 0 || fake.saveCount() != 0 {
		t.Fatalf("backend must not be called for invalid files")
	}
	if after := c.CurrentLayout(); after == nil || !after.Equal(*before) {
		t.Fatalf("current layout changed")
	}
	if c.Store().IsDirty() {
		t.Fatalf("store dirtied by failed import")
	}
}

func TestImportReplaceLoadsAndSaves(t *testing.T) {
	fake := newFakeBackend()
	fake.Put(testUser, remoteDoc(1))
	c := newTestCoordinator(t, fake)
	mount(t, c)

	incoming := layout.DefaultDocument()
	incoming.ID = "elsewhere"
	incoming.RuleOrder = []string{"info"}
	blob, err := exchange.Export(incoming, nil, exchange.ExportOptions{Format: exchange.FormatYAML, IncludeMetadata: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	result, err := c.ImportLayout(context.Background(), exchange.File{Name: blob.Filename, Data: blob.Data}, true)
	if err != nil || !result.Success {
		t.Fatalf("import: %+v, %v", result, err)
	}
	doc, _ := c.Store().Document()
	if !doc.SameContent(incoming) || doc.ID != "layout-1" || doc.Metadata.Version != 2 {
		t.Fatalf("unexpected imported document %+v", doc)
	}
	if fake.saveCount() != 1 {
		t.Fatalf("expected one save, got %d", fake.saveCount())
	}
}

func TestImportWithoutReplaceKeepsSnapshot(t *testing.T) {
	fake := newFakeBackend()
	fake.Put(testUser, remoteDoc(1))
	c := newTestCoordinator(t, fake)
	mount(t, c)
	before, _ := c.Store().Document()

	blob, _ := exchange.Export(layout.DefaultDocument(), nil, exchange.ExportOptions{Format: exchange.FormatJSON})
	result, err := c.ImportLayout(context.Background(), exchange.File{Name: "copy.json", Data: blob.Data}, false)
	if err != nil || !result.Success {
		t.Fatalf("import: %+v, %v", result, err)
	}
	after, _ := c.Store().Document()
	if !after.Equal(before) || fake.saveCount() != 0 {
		t.Fatalf("non-replace import must not touch the live document")
	}
	snaps, _ := c.ListSnapshots(context.Background())
	if len(snaps) != 1 || snaps[0].Name != "Imported copy.json" {
		t.Fatalf("unexpected snapshots %+v", snaps)
	}
}

func TestExportFallsBackToLocalDocument(t *testing.T) {
	fake := newFakeBackend()
	c := newTestCoordinator(t, fake)
	mount(t, c)

	blob, err := c.ExportLayout(context.Background(), exchange.ExportOptions{Format: exchange.FormatCSV})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if blob.ContentType != "text/csv" || len(blob.Data) == 0 {
		t.Fatalf("unexpected blob %+v", blob)
	}

	if err := c.SaveNow(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	blob, err = c.ExportLayout(context.Background(), exchange.ExportOptions{Format: exchange.FormatJSON, IncludeHistory: true})
	if err != nil || blob.Filename != "default-v1.json" {
		t.Fatalf("unexpected backend export %+v, %v", blob.Filename, err)
	}
}

func TestBeforeUnloadGuard(t *testing.T) {
	c := newTestCoordinator(t, newFakeBackend(), WithUnloadMessage("stay?"))
	mount(t, c)
	if prompt := c.BeforeUnload(); prompt.Block {
		t.Fatalf("clean store must not block: %+v", prompt)
	}
	moveWidget(t, c.Store(), "chat", 0)
	prompt := c.BeforeUnload()
	if !prompt.Block || prompt.Message != "stay?" {
		t.Fatalf("expected blocking prompt, got %+v", prompt)
	}
	if err := c.SaveNow(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if c.BeforeUnload().Block {
		t.Fatalf("saved store must not block")
	}
}

func TestLifecycleEmitsActivity(t *testing.T) {
	capture := &activity.CaptureHook{}
	emitter := activity.NewEmitter(activity.Hooks{capture}, activity.Config{Enabled: true})
	c := newTestCoordinator(t, newFakeBackend(), WithEmitter(emitter), WithActor("actor-1"))
	mount(t, c)
	moveWidget(t, c.Store(), "chat", 0)
	if err := c.SaveNow(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}

	verbs := capture.Verbs()
	if !slices.Equal(verbs, []string{activity.VerbLayoutLoaded, activity.VerbLayoutSaved}) {
		t.Fatalf("unexpected verbs %v", verbs)
	}
	saved := capture.Events()[1]
	if saved.ActorID != "actor-1" || saved.UserID != testUser || saved.Channel != activity.DefaultChannel {
		t.Fatalf("unexpected event %+v", saved)
	}
}

func TestClosedCoordinatorRejectsSaves(t *testing.T) {
	c := newTestCoordinator(t, newFakeBackend())
	mount(t, c)
	c.Close()
	if err := c.SaveNow(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
