package livestorage

import (
	"context"
	"fmt"

	"github.com/goliatone/go-livestorage/layering"
	"golang.org/x/sync/errgroup"
)

// LoadOptions select the areas to fetch and optional per-area defaults.
type LoadOptions struct {
	Areas AreaSelection
	// Defaults supply values for keys missing from a fetched area. Areas that
	// are not fetched ignore their defaults.
	Defaults map[Area]map[string]any
}

// Load fetches the selected areas in parallel and merges them into the views.
// Any fetch failure fails the whole load and leaves the views untouched.
// After the merge, listeners registered with OnLoad run once per key and
// area, then the storage subscribes to host changes. Calling Load again
// re-fetches and re-merges but never subscribes twice.
func (s *Storage) Load(ctx context.Context, opts LoadOptions) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	fetched, err := s.fetch(ctx, opts.Areas)
	if err != nil {
		return fmt.Errorf("livestorage: load: %w", err)
	}
	for area, items := range fetched {
		defaults := opts.Defaults[area]
		if len(defaults) == 0 {
			continue
		}
		if filled := layering.MissingKeys(items, defaults); len(filled) > 0 {
			s.logger().Debug("livestorage: filled defaults", "area", area, "keys", filled)
		}
		fetched[area] = layering.MergeItems(items, defaults)
	}

	keys := s.merge(fetched)

	s.subscribe()
	s.loaded.Store(true)
	s.emitLoaded(fetched, keys)
	return nil
}

func (s *Storage) fetch(ctx context.Context, selection AreaSelection) (map[Area]map[string]any, error) {
	results := make([]map[string]any, len(areaOrder))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, area := range areaOrder {
		if !selection.Fetch(area) {
			continue
		}
		group.Go(func() error {
			items, err := s.host.FetchAll(groupCtx, area)
			if err != nil {
				return &LoadError{Area: area, Err: err}
			}
			if items == nil {
				items = map[string]any{}
			}
			results[i] = items
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	fetched := make(map[Area]map[string]any, len(areaOrder))
	for i, area := range areaOrder {
		if results[i] != nil {
			fetched[area] = results[i]
		}
	}
	return fetched, nil
}

// merge applies fetched items under the gate, then replays OnLoad listeners
// for every key present in any view. It returns the number of keys replayed.
func (s *Storage) merge(fetched map[Area]map[string]any) int {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	s.dispatching.Add(1)
	defer s.dispatching.Add(-1)

	s.gate.apply(func() {
		for _, area := range areaOrder {
			view := s.views[area]
			for key, value := range fetched[area] {
				view.assign(key, layering.Clone(value))
			}
		}
	})

	replayed := 0
	for _, area := range areaOrder {
		view := s.views[area]
		for _, key := range view.Keys() {
			if !s.listeners.has(key) {
				continue
			}
			value, ok := view.Get(key)
			if !ok {
				continue
			}
			replayed++
			s.callListeners(key, Change{Key: key, Area: area, Value: value, Load: true}, true)
		}
	}
	return replayed
}
