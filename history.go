package layout

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryLimit bounds the number of retained history entries.
const DefaultHistoryLimit = 100

// HistoryEntry is one applied, undoable operation.
type HistoryEntry struct {
	ID          string    `json:"id"`
	Operation   Operation `json:"operation"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChangeKind names what triggered a store notification.
type ChangeKind string

const (
	ChangeApply   ChangeKind = "apply"
	ChangeUndo    ChangeKind = "undo"
	ChangeRedo    ChangeKind = "redo"
	ChangeReset   ChangeKind = "reset"
	ChangeLoad    ChangeKind = "load"
	ChangeClear   ChangeKind = "clear"
	ChangeSaving  ChangeKind = "saving"
	ChangeSynced  ChangeKind = "synced"
	ChangeDirtied ChangeKind = "dirtied"
)

// Change is delivered to subscribers after every state transition.
type Change struct {
	Kind         ChangeKind
	Revision     uint64
	HistoryIndex int
	Dirty        bool
	Saving       bool
}

// State is a point-in-time copy of the store's reactive state.
type State struct {
	CurrentLayout *Document
	IsDirty       bool
	IsSaving      bool
	History       []HistoryEntry
	HistoryIndex  int
	CanUndo       bool
	CanRedo       bool
	Revision      uint64
}

// LoadOptions controls a wholesale document replacement.
type LoadOptions struct {
	// Dirty marks the loaded document as needing a save.
	Dirty bool
	// KeepHistory retains the undo timeline instead of clearing it.
	KeepHistory bool
}

// HistoryStore holds the live document and its linear undo/redo timeline.
// It is safe for concurrent use; subscribers are invoked outside the lock.
type HistoryStore struct {
	mu       sync.Mutex
	doc      *Document
	history  []HistoryEntry
	index    int
	dirty    bool
	saving   bool
	revision uint64
	// synced is the content last acknowledged clean; nil when unknown.
	synced *Document

	listeners map[int]func(Change)
	nextID    int

	cfg storeConfig
}

type storeConfig struct {
	limit    int
	logger   Logger
	now      func() time.Time
	newID    func() string
	defaults func() Document
	initial  *Document
}

// StoreOption configures a HistoryStore.
type StoreOption func(*storeConfig)

// WithInitialDocument seeds the store with doc, clean.
func WithInitialDocument(doc Document) StoreOption {
	return func(cfg *storeConfig) {
		clone := doc.Clone()
		cfg.initial = &clone
	}
}

// WithHistoryLimit caps retained entries; values below 1 disable the cap.
func WithHistoryLimit(limit int) StoreOption {
	return func(cfg *storeConfig) {
		cfg.limit = limit
	}
}

// WithLogger attaches a logger to the store.
func WithLogger(logger Logger) StoreOption {
	return func(cfg *storeConfig) {
		if logger == nil {
			cfg.logger = noopLogger{}
			return
		}
		cfg.logger = logger
	}
}

// WithClock overrides the timestamp source for history entries.
func WithClock(now func() time.Time) StoreOption {
	return func(cfg *storeConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// WithIDGenerator overrides history entry id generation.
func WithIDGenerator(newID func() string) StoreOption {
	return func(cfg *storeConfig) {
		if newID != nil {
			cfg.newID = newID
		}
	}
}

// WithDefaultLayout overrides the layout used by ResetLayout.
func WithDefaultLayout(defaults func() Document) StoreOption {
	return func(cfg *storeConfig) {
		if defaults != nil {
			cfg.defaults = defaults
		}
	}
}

// NewHistoryStore constructs an empty store unless WithInitialDocument is given.
func NewHistoryStore(opts ...StoreOption) *HistoryStore {
	cfg := storeConfig{
		limit:    DefaultHistoryLimit,
		logger:   noopLogger{},
		now:      time.Now,
		newID:    uuid.NewString,
		defaults: DefaultDocument,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	store := &HistoryStore{
		doc:       cfg.initial,
		index:     -1,
		listeners: map[int]func(Change){},
		cfg:       cfg,
	}
	if cfg.initial != nil {
		baseline := cfg.initial.Clone()
		store.synced = &baseline
	}
	return store
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *HistoryStore) Subscribe(fn func(Change)) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Document returns a copy of the live document.
func (s *HistoryStore) Document() (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return Document{}, false
	}
	return s.doc.Clone(), true
}

// HasDocument reports whether a document has been loaded.
func (s *HistoryStore) HasDocument() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc != nil
}

// Checkpoint returns the live document together with its revision so a
// later MarkSynced can tell whether edits happened in between.
func (s *HistoryStore) Checkpoint() (Document, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return Document{}, s.revision, false
	}
	return s.doc.Clone(), s.revision, true
}

// State returns a copy of the reactive state.
func (s *HistoryStore) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		IsDirty:      s.dirty,
		IsSaving:     s.saving,
		History:      append([]HistoryEntry(nil), s.history...),
		HistoryIndex: s.index,
		CanUndo:      s.canUndo(),
		CanRedo:      s.canRedo(),
		Revision:     s.revision,
	}
	if s.doc != nil {
		clone := s.doc.Clone()
		st.CurrentLayout = &clone
	}
	return st
}

// History returns a copy of the recorded entries, oldest first.
func (s *HistoryStore) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryEntry(nil), s.history...)
}

// HistoryIndex is the position of the last applied entry, -1 when none is.
func (s *HistoryStore) HistoryIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// CanUndo reports whether an entry sits under the cursor.
func (s *HistoryStore) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canUndo()
}

// CanRedo reports whether an entry follows the cursor.
func (s *HistoryStore) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canRedo()
}

// IsDirty reports whether the document differs from the last acknowledged
// version.
func (s *HistoryStore) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// IsSaving reports whether a save is in flight.
func (s *HistoryStore) IsSaving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

// Revision increases with every change to the document.
func (s *HistoryStore) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

func (s *HistoryStore) canUndo() bool { return s.index >= 0 }

func (s *HistoryStore) canRedo() bool { return s.index < len(s.history)-1 }

// dirtyAgainst reports whether doc differs from the acknowledged content.
func (s *HistoryStore) dirtyAgainst(doc Document) bool {
	return s.synced == nil || !doc.SameContent(*s.synced)
}

// Apply validates op against the live document and, on success, records it.
// Entries after the cursor are discarded first. On error the store is
// unchanged.
func (s *HistoryStore) Apply(op Operation) error {
	if op == nil {
		return invalid("", "operation", "operation is nil")
	}
	s.mu.Lock()
	if s.doc == nil {
		s.mu.Unlock()
		return ErrNoDocument
	}
	bound, err := op.Bind(*s.doc)
	if err != nil {
		s.mu.Unlock()
		s.log("apply", op.Kind(), err)
		return err
	}
	next, err := bound.Apply(*s.doc)
	if err != nil {
		s.mu.Unlock()
		s.log("apply", op.Kind(), err)
		return err
	}

	s.history = append(s.history[:s.index+1], HistoryEntry{
		ID:          s.cfg.newID(),
		Operation:   bound,
		Description: bound.Describe(),
		Timestamp:   s.cfg.now(),
	})
	s.index = len(s.history) - 1
	if s.cfg.limit > 0 && len(s.history) > s.cfg.limit {
		drop := len(s.history) - s.cfg.limit
		s.history = append([]HistoryEntry(nil), s.history[drop:]...)
		s.index -= drop
	}
	s.doc = &next
	s.dirty = true
	s.revision++
	change, listeners := s.changeLocked(ChangeApply)
	s.mu.Unlock()

	s.log("apply", op.Kind(), nil)
	notify(listeners, change)
	return nil
}

// Undo reverts the entry under the cursor. It returns false when there is
// nothing to undo or the inverse no longer applies to the live document.
// Landing back on the acknowledged content clears the dirty flag.
func (s *HistoryStore) Undo() bool {
	s.mu.Lock()
	if !s.canUndo() || s.doc == nil {
		s.mu.Unlock()
		return false
	}
	entry := s.history[s.index]
	next, err := entry.Operation.Inverse().Apply(*s.doc)
	if err != nil {
		s.mu.Unlock()
		s.log("undo", entry.Operation.Kind(), err)
		return false
	}
	s.doc = &next
	s.index--
	s.dirty = s.dirtyAgainst(next)
	s.revision++
	change, listeners := s.changeLocked(ChangeUndo)
	s.mu.Unlock()

	notify(listeners, change)
	return true
}

// Redo re-applies the entry after the cursor.
func (s *HistoryStore) Redo() bool {
	s.mu.Lock()
	if !s.canRedo() || s.doc == nil {
		s.mu.Unlock()
		return false
	}
	entry := s.history[s.index+1]
	next, err := entry.Operation.Apply(*s.doc)
	if err != nil {
		s.mu.Unlock()
		s.log("redo", entry.Operation.Kind(), err)
		return false
	}
	s.doc = &next
	s.index++
	s.dirty = s.dirtyAgainst(next)
	s.revision++
	change, listeners := s.changeLocked(ChangeRedo)
	s.mu.Unlock()

	notify(listeners, change)
	return true
}

// JumpToHistory walks the cursor to target one Undo or Redo at a time so
// every intermediate state is validated and observed by subscribers. Targets
// outside [-1, len(history)-1] are rejected.
func (s *HistoryStore) JumpToHistory(target int) bool {
	s.mu.Lock()
	length := len(s.history)
	s.mu.Unlock()
	if target < -1 || target > length-1 {
		return false
	}
	for {
		current := s.HistoryIndex()
		switch {
		case current == target:
			return true
		case current > target:
			if !s.Undo() {
				return false
			}
		default:
			if !s.Redo() {
				return false
			}
		}
	}
}

// ResetLayout replaces the document contents with the default layout. The
// document id and metadata are kept. History is left as is; undo and redo
// re-validate each entry against the reset document.
func (s *HistoryStore) ResetLayout() {
	defaults := s.cfg.defaults()
	s.mu.Lock()
	next := defaults.Clone()
	if s.doc != nil {
		next.ID = s.doc.ID
		next.UserID = s.doc.UserID
		next.Metadata = s.doc.Metadata
	}
	s.doc = &next
	s.dirty = true
	s.revision++
	change, listeners := s.changeLocked(ChangeReset)
	s.mu.Unlock()

	s.log("reset", KindLayoutReset, nil)
	notify(listeners, change)
}

// ClearHistory drops every entry; the document is untouched.
func (s *HistoryStore) ClearHistory() {
	s.mu.Lock()
	s.history = nil
	s.index = -1
	change, listeners := s.changeLocked(ChangeClear)
	s.mu.Unlock()
	notify(listeners, change)
}

// Load replaces the document wholesale.
func (s *HistoryStore) Load(doc Document, opts LoadOptions) {
	next := doc.Clone()
	s.mu.Lock()
	s.doc = &next
	if !opts.KeepHistory {
		s.history = nil
		s.index = -1
	}
	s.dirty = opts.Dirty
	s.synced = nil
	if !opts.Dirty {
		baseline := next.Clone()
		s.synced = &baseline
	}
	s.revision++
	change, listeners := s.changeLocked(ChangeLoad)
	s.mu.Unlock()

	s.cfg.logger.LogLayout(LogEvent{Component: "history", Action: "load", LayoutID: next.ID, Version: next.Metadata.Version})
	notify(listeners, change)
}

// MarkSaving toggles the saving flag.
func (s *HistoryStore) MarkSaving(saving bool) {
	s.mu.Lock()
	if s.saving == saving {
		s.mu.Unlock()
		return
	}
	s.saving = saving
	change, listeners := s.changeLocked(ChangeSaving)
	s.mu.Unlock()
	notify(listeners, change)
}

// MarkSynced records that the backend acknowledged the document captured at
// revision with version. The dirty flag is only cleared when no edit
// happened since; it reports whether the store is now clean.
func (s *HistoryStore) MarkSynced(revision uint64, version int) bool {
	s.mu.Lock()
	if s.doc != nil {
		next := s.doc.Clone()
		next.Metadata.Version = version
		s.doc = &next
	}
	switch {
	case s.revision == revision:
		s.dirty = false
		if s.doc != nil {
			baseline := s.doc.Clone()
			s.synced = &baseline
		}
	default:
		// The acknowledged content was overtaken by later edits.
		s.synced = nil
	}
	clean := !s.dirty
	change, listeners := s.changeLocked(ChangeSynced)
	s.mu.Unlock()
	notify(listeners, change)
	return clean
}

// MarkDirty flags the document as needing a save. Until the next
// acknowledged save, undo and redo keep it dirty.
func (s *HistoryStore) MarkDirty() {
	s.mu.Lock()
	s.synced = nil
	if s.dirty {
		s.mu.Unlock()
		return
	}
	s.dirty = true
	change, listeners := s.changeLocked(ChangeDirtied)
	s.mu.Unlock()
	notify(listeners, change)
}

func (s *HistoryStore) changeLocked(kind ChangeKind) (Change, []func(Change)) {
	listeners := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	return Change{
		Kind:         kind,
		Revision:     s.revision,
		HistoryIndex: s.index,
		Dirty:        s.dirty,
		Saving:       s.saving,
	}, listeners
}

func (s *HistoryStore) log(action string, kind OperationKind, err error) {
	s.cfg.logger.LogLayout(LogEvent{
		Component: "history",
		Action:    action,
		Fields:    map[string]any{"operation": string(kind)},
		Err:       err,
	})
}

func notify(listeners []func(Change), change Change) {
	for _, fn := range listeners {
		fn(change)
	}
}
