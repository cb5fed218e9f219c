package livestorage

import (
	"github.com/goliatone/go-livestorage/pkg/activity"
)

// ActivityEnabled reports whether storage events reach activity hooks.
func (s *Storage) ActivityEnabled() bool {
	return s.emitter.Enabled()
}

func (s *Storage) emitLocalWrite(op hostOp) {
	if !s.emitter.Enabled() {
		return
	}
	input := activity.ItemEventInput{
		ContextID: s.id,
		Area:      string(op.area),
		Key:       op.key,
		NewValue:  op.value,
		HasNew:    op.hasValue,
	}
	if op.action == ActionRemove {
		s.emit(activity.BuildItemRemovedEvent(input))
		return
	}
	s.emit(activity.BuildItemSetEvent(input))
}

func (s *Storage) emitWriteFailed(info ErrorInfo) {
	if !s.emitter.Enabled() {
		return
	}
	s.emit(activity.BuildItemWriteFailedEvent(activity.ItemEventInput{
		ContextID: s.id,
		Area:      string(info.Area),
		Key:       info.Key,
		NewValue:  info.Value,
		HasNew:    info.HasValue,
		Err:       info.Err,
		Metadata:  map[string]any{"action": info.Action},
	}))
}

func (s *Storage) emitChanged(change Change) {
	if !s.emitter.Enabled() {
		return
	}
	s.emit(activity.BuildItemChangedEvent(activity.ItemEventInput{
		ContextID: s.id,
		Area:      string(change.Area),
		Key:       change.Key,
		OldValue:  change.OldValue,
		NewValue:  change.NewValue,
		HasOld:    change.HasOld,
		HasNew:    change.HasNew,
	}))
}

func (s *Storage) emitLoaded(fetched map[Area]map[string]any, replayed int) {
	if !s.emitter.Enabled() {
		return
	}
	areas := make([]string, 0, len(fetched))
	items := 0
	for _, area := range areaOrder {
		if loaded, ok := fetched[area]; ok {
			areas = append(areas, string(area))
			items += len(loaded)
		}
	}
	s.emit(activity.BuildLoadedEvent(activity.LoadEventInput{
		ContextID: s.id,
		Areas:     areas,
		Items:     items,
		Replayed:  replayed,
	}))
}

func (s *Storage) emit(event activity.Event) {
	if err := s.emitter.Emit(s.ctx, event); err != nil {
		s.logger().Warn("livestorage: activity hook failed", "verb", event.Verb, "object", event.ObjectID, "error", err)
	}
}
