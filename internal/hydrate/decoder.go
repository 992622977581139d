// Package hydrate turns loosely typed import payloads into typed values,
// running normalisation hooks before decoding and validation hooks after.
package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Source identifies where a payload came from.
type Source struct {
	Filename string
	Format   string
}

func (s Source) String() string {
	if s.Filename == "" {
		return "<inline>"
	}
	return s.Filename
}

// PreHook rewrites the raw payload before decoding (migrations, renames).
type PreHook func(Source, map[string]any) (map[string]any, error)

// PostHook validates or adjusts the decoded value.
type PostHook[T any] func(Source, *T) error

// Option configures a Decoder.
type Option[T any] func(*Decoder[T])

// Decoder converts import payloads into T.
type Decoder[T any] struct {
	preHooks  []PreHook
	postHooks []PostHook[T]
	strict    bool
}

// WithPreHook appends a hook run before decoding.
func WithPreHook[T any](hook PreHook) Option[T] {
	return func(d *Decoder[T]) {
		d.preHooks = append(d.preHooks, hook)
	}
}

// WithPostHook appends a hook run after decoding.
func WithPostHook[T any](hook PostHook[T]) Option[T] {
	return func(d *Decoder[T]) {
		d.postHooks = append(d.postHooks, hook)
	}
}

// WithStrict rejects payload keys that T does not declare.
func WithStrict[T any]() Option[T] {
	return func(d *Decoder[T]) {
		d.strict = true
	}
}

func NewDecoder[T any](opts ...Option[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode copies payload, runs the pre-hooks, decodes into T and runs the
// post-hooks. The caller's payload is never modified.
func (d *Decoder[T]) Decode(src Source, payload map[string]any) (T, error) {
	var zero T

	if payload == nil {
		return zero, fmt.Errorf("hydrate: %s: payload is nil", src)
	}

	current, err := clonePayload(payload)
	if err != nil {
		return zero, fmt.Errorf("hydrate: %s: copy payload: %w", src, err)
	}

	for _, hook := range d.preHooks {
		if hook == nil {
			continue
		}
		next, err := hook(src, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: %s: %w", src, err)
		}
		if next != nil {
			current = next
		}
	}

	buffer, err := json.Marshal(current)
	if err != nil {
		return zero, fmt.Errorf("hydrate: %s: encode payload: %w", src, err)
	}
	decoder := json.NewDecoder(bytes.NewReader(buffer))
	if d.strict {
		decoder.DisallowUnknownFields()
	}
	var result T
	if err := decoder.Decode(&result); err != nil {
		return zero, fmt.Errorf("hydrate: %s: decode: %w", src, err)
	}

	for _, hook := range d.postHooks {
		if hook == nil {
			continue
		}
		if err := hook(src, &result); err != nil {
			return zero, fmt.Errorf("hydrate: %s: %w", src, err)
		}
	}

	return result, nil
}

func clonePayload(payload map[string]any) (map[string]any, error) {
	buffer, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(buffer, &out); err != nil {
		return nil, err
	}
	return out, nil
}
