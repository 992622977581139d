package layout

import (
	"context"
	"log/slog"
	"time"
)

// LogEvent describes one history or persistence step for logging.
type LogEvent struct {
	Component string
	Action    string
	LayoutID  string
	Version   int
	Duration  time.Duration
	Fields    map[string]any
	Err       error
}

// Logger records layout events.
type Logger interface {
	LogLayout(LogEvent)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(LogEvent)

// LogLayout implements Logger.
func (f LoggerFunc) LogLayout(event LogEvent) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) LogLayout(LogEvent) {}

// NopLogger discards every event.
func NopLogger() Logger {
	return noopLogger{}
}

// NewSlogLogger forwards events to logger, at error level when the event
// carries an error and debug level otherwise.
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return slogLogger{logger: logger}
}

type slogLogger struct {
	logger *slog.Logger
}

func (l slogLogger) LogLayout(event LogEvent) {
	attrs := []slog.Attr{
		slog.String("component", event.Component),
		slog.String("action", event.Action),
	}
	if event.LayoutID != "" {
		attrs = append(attrs, slog.String("layoutId", event.LayoutID))
	}
	if event.Version != 0 {
		attrs = append(attrs, slog.Int("version", event.Version))
	}
	if event.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", event.Duration))
	}
	for key, value := range event.Fields {
		attrs = append(attrs, slog.Any(key, value))
	}
	level := slog.LevelDebug
	msg := event.Component + " " + event.Action
	if event.Err != nil {
		level = slog.LevelError
		attrs = append(attrs, slog.Any("error", event.Err))
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
