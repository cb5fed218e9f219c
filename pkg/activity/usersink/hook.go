package usersink

import (
	"context"
	"strings"

	"github.com/goliatone/go-livestorage/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// Hook records storage activity events in a go-users ActivitySink.
type Hook struct {
	Sink usertypes.ActivitySink
	// UserID and TenantID fill events that do not carry their own.
	UserID   string
	TenantID string
}

// Notify maps the event into an ActivityRecord and forwards it to the sink.
// Non-UUID identifiers map to uuid.Nil.
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

	record := usertypes.ActivityRecord{
		ActorID:    parseUUID(normalized.ActorID),
		UserID:     parseUUID(firstNonEmpty(normalized.UserID, h.UserID)),
		TenantID:   parseUUID(firstNonEmpty(normalized.TenantID, h.TenantID)),
		Verb:       normalized.Verb,
		ObjectType: normalized.ObjectType,
		ObjectID:   normalized.ObjectID,
		Channel:    normalized.Channel,
		Data:       normalized.Metadata,
		OccurredAt: normalized.OccurredAt,
	}
	if normalized.ActorID != "" && record.ActorID == uuid.Nil {
		if record.Data == nil {
			record.Data = map[string]any{}
		}
		record.Data["actor"] = normalized.ActorID
	}

	return h.Sink.Log(ctx, record)
}

func parseUUID(input string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
