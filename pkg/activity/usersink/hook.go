// Package usersink forwards layout activity to a go-users ActivitySink.
package usersink

import (
	"context"
	"strings"
	"time"

	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"

	"github.com/goliatone/go-layout/pkg/activity"
)

// Hook adapts activity events to a go-users ActivitySink.
type Hook struct {
	Sink usertypes.ActivitySink
	// Now stamps records whose event has no timestamp; defaults to time.Now.
	Now func() time.Time
}

// Notify maps event into an ActivityRecord. Actor, user and tenant ids that
// are not UUIDs are recorded as uuid.Nil and kept verbatim in Data.
func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}

	normalized := activity.NormalizeEvent(event)
	if normalized.Verb == "" || normalized.ObjectType == "" || normalized.ObjectID == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	data := copyData(normalized.Metadata)
	record := usertypes.ActivityRecord{
		ActorID:    identity(data, "actor_ref", normalized.ActorID),
		UserID:     identity(data, "user_ref", normalized.UserID),
		TenantID:   identity(data, "tenant_ref", normalized.TenantID),
		Verb:       normalized.Verb,
		ObjectType: normalized.ObjectType,
		ObjectID:   normalized.ObjectID,
		Channel:    normalized.Channel,
		Data:       data,
		OccurredAt: normalized.OccurredAt,
	}
	if record.OccurredAt.IsZero() {
		now := h.Now
		if now == nil {
			now = time.Now
		}
		record.OccurredAt = now()
	}
	if len(record.Data) == 0 {
		record.Data = nil
	}

	return h.Sink.Log(ctx, record)
}

// identity parses raw as a UUID; other non-empty values are stored under key.
func identity(data map[string]any, key, raw string) uuid.UUID {
	value := strings.TrimSpace(raw)
	if value == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		data[key] = value
		return uuid.Nil
	}
	return id
}

func copyData(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
