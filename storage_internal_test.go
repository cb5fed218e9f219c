package livestorage

import (
	"context"
	"testing"
)

type nopHost struct{}

func (nopHost) FetchAll(context.Context, Area) (map[string]any, error) { return nil, nil }
func (nopHost) Write(context.Context, Area, string, any) error          { return nil }
func (nopHost) Remove(context.Context, Area, string) error              { return nil }
func (nopHost) Subscribe(ChangeHandler) func()                          { return func() {} }

func TestGateMarksBatch(t *testing.T) {
	s, err := New(nopHost{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Updating() {
		t.Fatalf("gate must start closed")
	}
	var inside bool
	s.gate.apply(func() {
		inside = s.Updating()
		s.Sync().assign("k", 1)
	})
	if !inside {
		t.Fatalf("gate must report an open batch")
	}
	if s.Updating() {
		t.Fatalf("gate must close after the batch")
	}
	if got, _ := s.Sync().Get("k"); got != 1 {
		t.Fatalf("direct assignment lost, got %v", got)
	}
}

func TestRegistryRemoveKeepsOrder(t *testing.T) {
	r := newListenerRegistry()
	for _, id := range []ListenerID{"a", "b", "c", "b"} {
		r.add("k", listenerEntry{id: id, fn: func(Change) {}})
	}
	if n := r.remove("k", "b", ""); n != 2 {
		t.Fatalf("expected 2 removals, got %d", n)
	}
	entries := r.snapshot("k")
	if len(entries) != 2 || entries[0].id != "a" || entries[1].id != "c" {
		t.Fatalf("unexpected registry state %+v", entries)
	}
	r.remove("k", "a", "")
	r.remove("k", "c", "")
	if r.has("k") || r.count("k") != 0 {
		t.Fatalf("empty keys must be dropped")
	}
}

func TestListenerEntryAccepts(t *testing.T) {
	cases := []struct {
		name   string
		opts   ListenerOptions
		area   Area
		isLoad bool
		want   bool
	}{
		{name: "live unscoped", opts: ListenerOptions{}, area: AreaSync, want: true},
		{name: "load without onload", opts: ListenerOptions{}, area: AreaSync, isLoad: true, want: false},
		{name: "load with onload", opts: ListenerOptions{OnLoad: true}, area: AreaLocal, isLoad: true, want: true},
		{name: "area match", opts: ListenerOptions{Area: AreaLocal}, area: AreaLocal, want: true},
		{name: "area mismatch", opts: ListenerOptions{Area: AreaSync}, area: AreaLocal, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry := listenerEntry{opts: tc.opts}
			if got := entry.accepts(tc.area, tc.isLoad); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestWriteQueueRunsInOrder(t *testing.T) {
	var got []string
	q := newWriteQueue(func(op hostOp) { got = append(got, op.key) })
	for _, key := range []string{"a", "b", "c"} {
		q.push(hostOp{action: ActionSet, key: key})
	}
	q.wait()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestAreaSelectionDefaults(t *testing.T) {
	var sel AreaSelection
	if !sel.Fetch(AreaSync) || !sel.Fetch(AreaLocal) || sel.Fetch(AreaManaged) {
		t.Fatalf("unexpected defaults")
	}
	if sel.Fetch("session") {
		t.Fatalf("unknown areas are never fetched")
	}
	if _, err := ParseArea(" Local "); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := ParseArea("session"); err == nil {
		t.Fatalf("expected unknown area error")
	}
}
