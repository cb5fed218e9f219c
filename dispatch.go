package livestorage

import "github.com/goliatone/go-livestorage/layering"

// handleChanges applies a host change batch to the area view, then notifies
// listeners in batch order once the view already holds the new values.
func (s *Storage) handleChanges(batch ChangeBatch, area Area) {
	view, ok := s.views[area]
	if !ok {
		s.logger().Debug("livestorage: ignoring changes for unknown area", "area", area)
		return
	}
	if len(batch) == 0 || s.closed.Load() {
		return
	}

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	s.dispatching.Add(1)
	defer s.dispatching.Add(-1)

	added := make(map[string]any, len(batch))
	var removed []string
	for _, kc := range batch {
		if kc.HasNew {
			added[kc.Key] = kc.NewValue
			continue
		}
		removed = append(removed, kc.Key)
	}

	s.gate.apply(func() {
		for key, value := range added {
			view.assign(key, layering.Clone(value))
		}
		for _, key := range removed {
			view.remove(key)
		}
	})

	for _, kc := range batch {
		change := kc.toChange(area)
		s.emitChanged(change)
		if s.listeners.has(kc.Key) {
			s.callListeners(kc.Key, change, false)
		}
	}
}
