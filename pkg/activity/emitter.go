package activity

import (
	"context"
	"strings"
)

// DefaultChannel is applied to events that do not name one.
const DefaultChannel = "layouts"

// Config controls emission.
type Config struct {
	Enabled bool
	Channel string
}

// Emitter sends events to hooks with a default channel applied.
type Emitter struct {
	hooks   Hooks
	enabled bool
	channel string
}

func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	kept := make(Hooks, 0, len(hooks))
	for _, hook := range hooks {
		if hook != nil {
			kept = append(kept, hook)
		}
	}
	return &Emitter{
		hooks:   kept,
		enabled: cfg.Enabled && len(kept) > 0,
		channel: channel,
	}
}

// Enabled reports whether Emit does anything. A nil Emitter is disabled.
func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled
}

func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	return e.hooks.Notify(ctx, event)
}
