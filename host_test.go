package livestorage_test

import (
	"context"
	"sync"

	"github.com/goliatone/go-livestorage"
)

// scriptedHost serves fixed fetch results and lets tests push raw change
// batches to every subscriber.
type scriptedHost struct {
	mu         sync.Mutex
	items      map[livestorage.Area]map[string]any
	handlers   []livestorage.ChangeHandler
	writes     []string
	subscribes int
}

func newScriptedHost(items map[livestorage.Area]map[string]any) *scriptedHost {
	if items == nil {
		items = map[livestorage.Area]map[string]any{}
	}
	return &scriptedHost{items: items}
}

func (h *scriptedHost) FetchAll(_ context.Context, area livestorage.Area) (map[string]any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := map[string]any{}
	for key, value := range h.items[area] {
		out[key] = value
	}
	return out, nil
}

func (h *scriptedHost) Write(_ context.Context, area livestorage.Area, key string, _ any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes = append(h.writes, "set "+string(area)+"/"+key)
	return nil
}

func (h *scriptedHost) Remove(_ context.Context, area livestorage.Area, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes = append(h.writes, "remove "+string(area)+"/"+key)
	return nil
}

func (h *scriptedHost) Subscribe(handler livestorage.ChangeHandler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribes++
	h.handlers = append(h.handlers, handler)
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.handlers = nil
	}
}

func (h *scriptedHost) emit(batch livestorage.ChangeBatch, area livestorage.Area) {
	h.mu.Lock()
	handlers := append([]livestorage.ChangeHandler(nil), h.handlers...)
	h.mu.Unlock()
	for _, handler := range handlers {
		handler(batch, area)
	}
}

func (h *scriptedHost) writeLog() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.writes...)
}

// changeLog collects listener invocations from any goroutine.
type changeLog struct {
	mu      sync.Mutex
	changes []livestorage.Change
}

func (l *changeLog) listener() livestorage.Listener {
	return func(change livestorage.Change) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.changes = append(l.changes, change)
	}
}

func (l *changeLog) all() []livestorage.Change {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]livestorage.Change(nil), l.changes...)
}

func (l *changeLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.changes)
}

// detachlessHost subscribes like scriptedHost but returns no unsubscribe func.
type detachlessHost struct {
	*scriptedHost
}

func (h detachlessHost) Subscribe(handler livestorage.ChangeHandler) func() {
	h.scriptedHost.Subscribe(handler)
	return nil
}

func (h *scriptedHost) subscriptions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribes
}
