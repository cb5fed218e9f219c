package activity

import (
	"fmt"
	"strings"
	"time"
)

const (
	VerbItemSet         = "storage.item.set"
	VerbItemRemoved     = "storage.item.removed"
	VerbItemChanged     = "storage.item.changed"
	VerbItemWriteFailed = "storage.item.write_failed"
	VerbLoaded          = "storage.loaded"

	ObjectTypeItem    = "storage.item"
	ObjectTypeStorage = "storage"
)

// ItemEventInput describes a single key in a storage area.
type ItemEventInput struct {
	ContextID  string
	Area       string
	Key        string
	OldValue   any
	NewValue   any
	HasOld     bool
	HasNew     bool
	Err        error
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// LoadEventInput describes a completed load.
type LoadEventInput struct {
	ContextID  string
	Areas      []string
	Items      int
	Replayed   int
	Channel    string
	OccurredAt time.Time
}

// BuildItemSetEvent describes a local write forwarded to the host.
func BuildItemSetEvent(input ItemEventInput) Event {
	return buildItemEvent(VerbItemSet, input)
}

// BuildItemRemovedEvent describes a local removal forwarded to the host.
func BuildItemRemovedEvent(input ItemEventInput) Event {
	return buildItemEvent(VerbItemRemoved, input)
}

// BuildItemChangedEvent describes a change reported by the host.
func BuildItemChangedEvent(input ItemEventInput) Event {
	return buildItemEvent(VerbItemChanged, input)
}

// BuildItemWriteFailedEvent describes a host write that failed.
func BuildItemWriteFailedEvent(input ItemEventInput) Event {
	return buildItemEvent(VerbItemWriteFailed, input)
}

// BuildLoadedEvent describes a successful load for a context.
func BuildLoadedEvent(input LoadEventInput) Event {
	metadata := map[string]any{
		"areas":    append([]string{}, input.Areas...),
		"items":    input.Items,
		"replayed": input.Replayed,
	}
	objectID := strings.TrimSpace(input.ContextID)
	if objectID == "" {
		objectID = ObjectTypeStorage
	} else {
		metadata["context_id"] = objectID
	}
	return Event{
		Verb:       VerbLoaded,
		ObjectType: ObjectTypeStorage,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func buildItemEvent(verb string, input ItemEventInput) Event {
	metadata := cloneMap(input.Metadata)
	metadata = ensureMetadata(metadata)
	metadata["area"] = input.Area
	metadata["key"] = input.Key
	if input.ContextID != "" {
		metadata["context_id"] = input.ContextID
	}
	if input.HasOld {
		metadata["old_value"] = input.OldValue
	}
	if input.HasNew {
		metadata["new_value"] = input.NewValue
	}
	if input.Err != nil {
		metadata["error"] = input.Err.Error()
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ContextID),
		ObjectType: ObjectTypeItem,
		ObjectID:   ItemObjectID(input.Area, input.Key),
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

// ItemObjectID formats the object ID used for item events.
func ItemObjectID(area, key string) string {
	return fmt.Sprintf("%s/%s", strings.TrimSpace(area), key)
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
