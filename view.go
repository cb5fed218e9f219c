package livestorage

import (
	"sort"

	"github.com/goliatone/go-livestorage/layering"
)

// View is the in-memory mirror of one area. Reads are served locally; Set
// and Delete apply optimistically and forward the write to the host without
// waiting for it.
type View struct {
	area Area
	s    *Storage
	data map[string]any
}

func newView(area Area, s *Storage) *View {
	return &View{area: area, s: s, data: map[string]any{}}
}

func (v *View) Area() Area {
	return v.area
}

// Get returns a copy of the value stored under key.
func (v *View) Get(key string) (any, bool) {
	v.s.mu.RLock()
	value, ok := v.data[key]
	v.s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return layering.Clone(value), true
}

func (v *View) Has(key string) bool {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	_, ok := v.data[key]
	return ok
}

func (v *View) Len() int {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return len(v.data)
}

// Keys returns the stored keys in lexical order.
func (v *View) Keys() []string {
	v.s.mu.RLock()
	keys := make([]string, 0, len(v.data))
	for key := range v.data {
		keys = append(keys, key)
	}
	v.s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Snapshot returns a deep copy of the view contents.
func (v *View) Snapshot() map[string]any {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := make(map[string]any, len(v.data))
	for key, value := range v.data {
		out[key] = layering.Clone(value)
	}
	return out
}

// Set stores value under key and forwards it to the host. Host failures are
// reported through the storage ErrorHandler, not returned; the local value is
// kept until the host reports otherwise.
func (v *View) Set(key string, value any) error {
	if err := v.checkWritable(ActionSet, key); err != nil {
		return err
	}
	stored := layering.Clone(value)
	v.s.mu.Lock()
	v.data[key] = stored
	v.s.mu.Unlock()

	v.s.forward(hostOp{
		action:   ActionSet,
		area:     v.area,
		key:      key,
		value:    layering.Clone(stored),
		hasValue: true,
	})
	return nil
}

// Delete removes key locally and forwards the removal to the host.
func (v *View) Delete(key string) error {
	if err := v.checkWritable(ActionRemove, key); err != nil {
		return err
	}
	v.s.mu.Lock()
	delete(v.data, key)
	v.s.mu.Unlock()

	v.s.forward(hostOp{action: ActionRemove, area: v.area, key: key})
	return nil
}

func (v *View) checkWritable(op, key string) error {
	if v.area.ReadOnly() {
		return &AreaError{Op: op, Area: v.area, Key: key, Err: ErrReadOnlyArea}
	}
	if v.s.closed.Load() {
		return &AreaError{Op: op, Area: v.area, Key: key, Err: ErrClosed}
	}
	return nil
}

// assign and remove are the gated direct path; callers hold the view lock
// through updateGate.apply.
func (v *View) assign(key string, value any) {
	v.data[key] = value
}

func (v *View) remove(key string) {
	delete(v.data, key)
}
