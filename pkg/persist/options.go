package persist

import (
	"time"

	layout "github.com/goliatone/go-layout"
	"github.com/goliatone/go-layout/pkg/activity"
	"github.com/goliatone/go-layout/pkg/exchange"
	"github.com/goliatone/go-layout/pkg/migrate"
)

const (
	// DefaultDebounce is the autosave quiet period.
	DefaultDebounce = 500 * time.Millisecond
	// DefaultUnloadMessage is shown when leaving with unsaved changes.
	DefaultUnloadMessage = "You have unsaved layout changes. Leave anyway?"
)

type config struct {
	debounce      time.Duration
	saveTimeout   time.Duration
	autosave      bool
	logger        layout.Logger
	emitter       *activity.Emitter
	migrator      *migrate.Migrator
	importer      *exchange.Importer
	unloadMessage string
	actorID       string
	now           func() time.Time

	onLoadSuccess func(layout.Document)
	onLoadError   func(error)
	onSaveSuccess func(layout.Document)
	onSaveError   func(error)
}

func defaultConfig() config {
	return config{
		debounce:      DefaultDebounce,
		autosave:      true,
		logger:        layout.NopLogger(),
		unloadMessage: DefaultUnloadMessage,
		now:           time.Now,
	}
}

// Option configures a Coordinator.
type Option func(*config)

// WithDebounce sets the autosave quiet period.
func WithDebounce(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.debounce = d
		}
	}
}

// WithSaveTimeout bounds each backend save. Zero leaves the caller's
// context in charge.
func WithSaveTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.saveTimeout = d
	}
}

// WithAutosave toggles debounced autosave (on by default).
func WithAutosave(enabled bool) Option {
	return func(cfg *config) {
		cfg.autosave = enabled
	}
}

func WithLogger(logger layout.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithEmitter sends lifecycle activity events through emitter.
func WithEmitter(emitter *activity.Emitter) Option {
	return func(cfg *config) {
		cfg.emitter = emitter
	}
}

// WithMigrator sets the migrator behind MigrateLayout and imports.
func WithMigrator(m *migrate.Migrator) Option {
	return func(cfg *config) {
		cfg.migrator = m
	}
}

// WithImportDecoder sets the importer used to validate files locally.
func WithImportDecoder(importer *exchange.Importer) Option {
	return func(cfg *config) {
		cfg.importer = importer
	}
}

func WithUnloadMessage(message string) Option {
	return func(cfg *config) {
		if message != "" {
			cfg.unloadMessage = message
		}
	}
}

// WithActor records actorID on emitted activity events.
func WithActor(actorID string) Option {
	return func(cfg *config) {
		cfg.actorID = actorID
	}
}

func WithClock(now func() time.Time) Option {
	return func(cfg *config) {
		if now != nil {
			cfg.now = now
		}
	}
}

// OnLoadSuccess is called with the document the store holds after a load.
func OnLoadSuccess(fn func(layout.Document)) Option {
	return func(cfg *config) {
		cfg.onLoadSuccess = fn
	}
}

// OnLoadError is called when fetching the remote document fails.
func OnLoadError(fn func(error)) Option {
	return func(cfg *config) {
		cfg.onLoadError = fn
	}
}

// OnSaveSuccess is called with the document as stored by the backend.
func OnSaveSuccess(fn func(layout.Document)) Option {
	return func(cfg *config) {
		cfg.onSaveSuccess = fn
	}
}

// OnSaveError is called when a save is rejected.
func OnSaveError(fn func(error)) Option {
	return func(cfg *config) {
		cfg.onSaveError = fn
	}
}
