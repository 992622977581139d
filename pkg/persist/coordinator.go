// Package persist reconciles a layout.HistoryStore with a versioned remote
// backend: loading, debounced autosave, optimistic saves with rollback,
// conflict detection and resolution, snapshots, templates, migration and
// import/export.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	layout "github.com/goliatone/go-layout"
	"github.com/goliatone/go-layout/pkg/activity"
	"github.com/goliatone/go-layout/pkg/backend"
	"github.com/goliatone/go-layout/pkg/exchange"
	"github.com/goliatone/go-layout/pkg/migrate"
)

var (
	ErrConflictPending  = errors.New("persist: conflict pending resolution")
	ErrUnknownStrategy  = errors.New("persist: unknown resolution strategy")
	ErrSnapshotNotFound = errors.New("persist: snapshot not found")
	ErrClosed           = errors.New("persist: coordinator closed")
	ErrNoRemote         = errors.New("persist: no remote layout")
)

// Conflict records a remote version newer than the last synced one.
type Conflict struct {
	LocalVersion  int
	ServerVersion int
	Remote        layout.Document
	DetectedAt    time.Time
}

// Status is the coordinator's reactive state. CurrentLayout is the cached
// remote copy (the optimistic value while a save is in flight); LocalLayout
// is the working document held by the store.
type Status struct {
	CurrentLayout     *layout.Document
	LocalLayout       *layout.Document
	IsDirty           bool
	IsSaving          bool
	HasUnsavedChanges bool
	SaveError         error
	AutosavePending   bool
	LastSyncedVersion int
	Conflict          *Conflict
	HistoryIndex      int
	CanUndo           bool
	CanRedo           bool
}

// UnloadPrompt tells the host whether to intercept navigation.
type UnloadPrompt struct {
	Block   bool
	Message string
}

// Coordinator owns the sync between one user's store and the backend.
type Coordinator struct {
	store   *layout.HistoryStore
	backend backend.Backend
	userID  string
	cfg     config

	mu          sync.Mutex
	cached      *layout.Document
	pending     *layout.Document
	lastSynced  int
	saveErr     error
	conflict    *Conflict
	baseCtx     context.Context
	unsubscribe func()
	closed      bool

	// saveMu keeps at most one backend write in flight.
	saveMu   sync.Mutex
	autosave *debouncer
}

// New wires a coordinator. Call Mount to subscribe and load.
func New(store *layout.HistoryStore, b backend.Backend, userID string, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("persist: store is required")
	}
	if b == nil {
		return nil, fmt.Errorf("persist: backend is required")
	}
	if userID == "" {
		return nil, fmt.Errorf("persist: user id is required")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.migrator == nil {
		cfg.migrator = migrate.New(migrate.WithLogger(cfg.logger))
	}
	if cfg.importer == nil {
		cfg.importer = exchange.NewImporter(exchange.WithMigrator(cfg.migrator), exchange.WithImportLogger(cfg.logger))
	}

	c := &Coordinator{
		store:   store,
		backend: b,
		userID:  userID,
		cfg:     cfg,
		baseCtx: context.Background(),
	}
	c.autosave = newDebouncer(cfg.debounce, c.runAutosave)
	return c, nil
}

// Store returns the underlying history store.
func (c *Coordinator) Store() *layout.HistoryStore {
	return c.store
}

// Mount subscribes to store changes and loads the remote document. Values
// of ctx are kept for autosaves; its cancellation is not.
func (c *Coordinator) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.baseCtx = context.WithoutCancel(ctx)
	if c.unsubscribe == nil {
		c.unsubscribe = c.store.Subscribe(c.onChange)
	}
	c.mu.Unlock()
	return c.Load(ctx)
}

// Close cancels the autosave timer and unsubscribes. Unsaved changes are not
// flushed; check BeforeUnload first.
func (c *Coordinator) Close() {
	c.autosave.Stop()
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.closed = true
	c.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Load fetches the remote document and loads it when the store is empty.
// A store that already holds a document keeps it.
func (c *Coordinator) Load(ctx context.Context) error {
	return c.load(ctx, false)
}

// ResetToServer discards local state and loads the remote document.
func (c *Coordinator) ResetToServer(ctx context.Context) error {
	return c.load(ctx, true)
}

func (c *Coordinator) load(ctx context.Context, force bool) error {
	started := c.cfg.now()
	remote, err := c.backend.GetLayout(ctx, c.userID)
	if err != nil {
		err = fmt.Errorf("persist: load: %w", err)
		c.log("load", nil, started, err)
		if c.cfg.onLoadError != nil {
			c.cfg.onLoadError(err)
		}
		return err
	}

	switch {
	case remote != nil && (force || !c.store.HasDocument()):
		c.autosave.Cancel()
		c.store.Load(*remote, layout.LoadOptions{})
		c.mu.Lock()
		cached := remote.Clone()
		c.cached = &cached
		c.lastSynced = remote.Metadata.Version
		c.saveErr = nil
		c.conflict = nil
		c.mu.Unlock()
	case remote == nil && (force || !c.store.HasDocument()):
		c.autosave.Cancel()
		doc := layout.DefaultDocument()
		doc.UserID = c.userID
		c.store.Load(doc, layout.LoadOptions{})
		c.mu.Lock()
		c.cached = nil
		c.lastSynced = 0
		c.saveErr = nil
		c.conflict = nil
		c.mu.Unlock()
	}

	doc, _ := c.store.Document()
	c.log("load", &doc, started, nil)
	c.emit(ctx, activity.VerbLayoutLoaded, activity.LayoutEventInput{LayoutID: doc.ID, Version: doc.Metadata.Version})
	if c.cfg.onLoadSuccess != nil {
		c.cfg.onLoadSuccess(doc)
	}
	return nil
}

// SaveNow cancels any scheduled autosave and saves immediately.
func (c *Coordinator) SaveNow(ctx context.Context) error {
	c.autosave.Cancel()
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	_, err := c.persist(ctx, "manual", nil)
	return err
}

func (c *Coordinator) runAutosave() {
	if !c.store.IsDirty() {
		return
	}
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if err := c.guard(); err != nil {
		c.cfg.logger.LogLayout(layout.LogEvent{Component: "persist", Action: "autosave_skipped", Err: err})
		return
	}
	if !c.store.IsDirty() {
		return
	}
	c.mu.Lock()
	ctx := c.baseCtx
	c.mu.Unlock()
	_, _ = c.persist(ctx, "autosave", nil)
}

func (c *Coordinator) onChange(change layout.Change) {
	if !c.cfg.autosave || !change.Dirty {
		return
	}
	switch change.Kind {
	case layout.ChangeApply, layout.ChangeUndo, layout.ChangeRedo, layout.ChangeReset, layout.ChangeDirtied:
		c.autosave.Notify()
	}
}

// guard rejects writes while closed or while a conflict awaits resolution.
func (c *Coordinator) guard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.conflict != nil {
		return ErrConflictPending
	}
	return nil
}

// persist runs the optimistic write for the store's current document. The
// outgoing version is the last synced one unless version overrides it.
// Callers hold saveMu.
func (c *Coordinator) persist(ctx context.Context, reason string, version *int) (layout.Document, error) {
	doc, revision, ok := c.store.Checkpoint()
	if !ok {
		return layout.Document{}, layout.ErrNoDocument
	}
	if doc.UserID == "" {
		doc.UserID = c.userID
	}

	c.mu.Lock()
	if version != nil {
		doc.Metadata.Version = *version
	} else {
		doc.Metadata.Version = c.lastSynced
	}
	optimistic := doc.Clone()
	c.pending = &optimistic
	c.mu.Unlock()

	started := c.cfg.now()
	c.store.MarkSaving(true)
	saveCtx, cancel := c.saveContext(ctx)
	saved, err := c.backend.SaveLayout(saveCtx, c.userID, doc)
	cancel()
	c.store.MarkSaving(false)

	if err != nil {
		err = fmt.Errorf("persist: save (%s): %w", reason, err)
		c.mu.Lock()
		c.pending = nil
		c.saveErr = err
		c.mu.Unlock()
		c.log("save_failed", &doc, started, err)
		c.emit(ctx, activity.VerbLayoutSaveFailed, activity.LayoutEventInput{
			LayoutID: doc.ID,
			Version:  doc.Metadata.Version,
			Err:      err,
			Metadata: map[string]any{"reason": reason},
		})
		if c.cfg.onSaveError != nil {
			c.cfg.onSaveError(err)
		}
		return layout.Document{}, err
	}

	c.mu.Lock()
	c.pending = nil
	cached := saved.Clone()
	c.cached = &cached
	c.lastSynced = saved.Metadata.Version
	c.saveErr = nil
	c.mu.Unlock()
	c.store.MarkSynced(revision, saved.Metadata.Version)

	c.log("save", &saved, started, nil)
	c.emit(ctx, activity.VerbLayoutSaved, activity.LayoutEventInput{
		LayoutID: saved.ID,
		Version:  saved.Metadata.Version,
		Metadata: map[string]any{"reason": reason},
	})
	if c.cfg.onSaveSuccess != nil {
		c.cfg.onSaveSuccess(saved.Clone())
	}
	return saved, nil
}

// replace loads doc wholesale and saves it. Callers hold saveMu.
func (c *Coordinator) replace(ctx context.Context, doc layout.Document, reason string) (layout.Document, error) {
	if current, ok := c.store.Document(); ok && doc.ID == "" {
		doc.ID = current.ID
	}
	c.store.Load(doc, layout.LoadOptions{Dirty: true})
	return c.persist(ctx, reason, nil)
}

func (c *Coordinator) saveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.saveTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.saveTimeout)
	}
	return ctx, func() {}
}

// CurrentLayout returns the cached remote copy, or the optimistic value while
// a save is in flight. It is nil before anything was loaded from or saved
// to the backend.
func (c *Coordinator) CurrentLayout() *layout.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked()
}

func (c *Coordinator) currentLocked() *layout.Document {
	src := c.cached
	if c.pending != nil {
		src = c.pending
	}
	if src == nil {
		return nil
	}
	out := src.Clone()
	return &out
}

// LastSyncedVersion is the backend version of the last successful load or save.
func (c *Coordinator) LastSyncedVersion() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSynced
}

// HasUnsavedChanges reports local edits not yet acknowledged by the backend.
func (c *Coordinator) HasUnsavedChanges() bool {
	return c.store.IsDirty() || c.store.IsSaving()
}

// BeforeUnload says whether leaving now would lose edits.
func (c *Coordinator) BeforeUnload() UnloadPrompt {
	if !c.HasUnsavedChanges() {
		return UnloadPrompt{}
	}
	return UnloadPrompt{Block: true, Message: c.cfg.unloadMessage}
}

// Status snapshots the reactive state.
func (c *Coordinator) Status() Status {
	state := c.store.State()
	c.mu.Lock()
	defer c.mu.Unlock()
	status := Status{
		CurrentLayout:     c.currentLocked(),
		LocalLayout:       state.CurrentLayout,
		IsDirty:           state.IsDirty,
		IsSaving:          state.IsSaving,
		HasUnsavedChanges: state.IsDirty || state.IsSaving,
		SaveError:         c.saveErr,
		AutosavePending:   c.autosave.Pending(),
		LastSyncedVersion: c.lastSynced,
		HistoryIndex:      state.HistoryIndex,
		CanUndo:           state.CanUndo,
		CanRedo:           state.CanRedo,
	}
	if c.conflict != nil {
		conflict := *c.conflict
		conflict.Remote = c.conflict.Remote.Clone()
		status.Conflict = &conflict
	}
	return status
}

func (c *Coordinator) log(action string, doc *layout.Document, started time.Time, err error) {
	event := layout.LogEvent{
		Component: "persist",
		Action:    action,
		Duration:  c.cfg.now().Sub(started),
		Fields:    map[string]any{"user": c.userID},
		Err:       err,
	}
	if doc != nil {
		event.LayoutID = doc.ID
		event.Version = doc.Metadata.Version
	}
	c.cfg.logger.LogLayout(event)
}

func (c *Coordinator) emit(ctx context.Context, verb string, input activity.LayoutEventInput) {
	if !c.cfg.emitter.Enabled() {
		return
	}
	input.UserID = c.userID
	input.ActorID = c.cfg.actorID
	if input.OccurredAt.IsZero() {
		input.OccurredAt = c.cfg.now()
	}
	if err := c.cfg.emitter.Emit(ctx, activity.BuildLayoutEvent(verb, input)); err != nil {
		c.cfg.logger.LogLayout(layout.LogEvent{Component: "persist", Action: "emit", Err: err, Fields: map[string]any{"verb": verb}})
	}
}
