// Package activity carries layout lifecycle events (loads, saves, conflicts,
// snapshots, imports) to audit hooks.
package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event is one layout lifecycle occurrence. Identifiers are plain strings so
// call sites do not depend on a UUID type.
type Event struct {
	Verb       string
	ActorID    string
	UserID     string
	TenantID   string
	ObjectType string
	ObjectID   string
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivityHook receives normalized events.
type ActivityHook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc adapts a function to ActivityHook.
type HookFunc func(ctx context.Context, event Event) error

func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks fans events out to every hook.
type Hooks []ActivityHook

func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Notify normalizes event and forwards it to all hooks. Events that still
// lack a verb, object type or object id after normalization are dropped.
// Hook errors are tagged with the verb and hook position, then joined.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}

	normalized := NormalizeEvent(event)
	if normalized.Verb == "" || normalized.ObjectType == "" || normalized.ObjectID == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for i, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, normalized); err != nil {
			errs = append(errs, fmt.Errorf("activity: %s hook %d: %w", normalized.Verb, i, err))
		}
	}
	return errors.Join(errs...)
}

// ForVerbs wraps hook so it only sees events whose verb matches one of
// patterns. A pattern ending in ".*" matches every verb below that prefix,
// so "layout.snapshot.*" selects snapshot events.
func ForVerbs(hook ActivityHook, patterns ...string) ActivityHook {
	if hook == nil {
		return nil
	}
	normalized := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		if pattern = canonicalVerb(pattern); pattern != "" {
			normalized = append(normalized, pattern)
		}
	}
	return HookFunc(func(ctx context.Context, event Event) error {
		verb := canonicalVerb(event.Verb)
		for _, pattern := range normalized {
			if matchVerb(pattern, verb) {
				return hook.Notify(ctx, event)
			}
		}
		return nil
	})
}

func matchVerb(pattern, verb string) bool {
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(verb, prefix+".")
	}
	return pattern == verb
}

// NormalizeEvent trims identifiers, copies metadata and stamps OccurredAt in
// UTC. Verbs are lower-cased and bare verbs ("saved") gain the "layout."
// namespace. A missing object type is derived from the verb and a missing
// object id is taken from the "snapshot_id" or "layout_id" metadata.
func NormalizeEvent(event Event) Event {
	normalized := event
	normalized.Verb = canonicalVerb(event.Verb)
	normalized.ActorID = strings.TrimSpace(event.ActorID)
	normalized.UserID = strings.TrimSpace(event.UserID)
	normalized.TenantID = strings.TrimSpace(event.TenantID)
	normalized.ObjectType = strings.TrimSpace(event.ObjectType)
	normalized.ObjectID = strings.TrimSpace(event.ObjectID)
	normalized.Channel = strings.TrimSpace(event.Channel)
	normalized.Metadata = cloneMap(event.Metadata)

	if normalized.ObjectType == "" && normalized.Verb != "" {
		normalized.ObjectType = objectTypeFor(normalized.Verb)
	}
	if normalized.ObjectID == "" {
		key := "layout_id"
		if normalized.ObjectType == ObjectSnapshot {
			key = "snapshot_id"
		}
		if id, ok := normalized.Metadata[key].(string); ok {
			normalized.ObjectID = strings.TrimSpace(id)
		}
	}

	if normalized.OccurredAt.IsZero() {
		normalized.OccurredAt = time.Now()
	}
	normalized.OccurredAt = normalized.OccurredAt.UTC()
	return normalized
}

func canonicalVerb(verb string) string {
	verb = strings.ToLower(strings.TrimSpace(verb))
	if verb == "" || strings.HasPrefix(verb, ObjectLayout+".") {
		return verb
	}
	return ObjectLayout + "." + verb
}

func objectTypeFor(verb string) string {
	if strings.HasPrefix(verb, ObjectSnapshot+".") {
		return ObjectSnapshot
	}
	return ObjectLayout
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
