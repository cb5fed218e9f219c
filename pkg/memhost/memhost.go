package memhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/goliatone/go-livestorage"
	"github.com/goliatone/go-livestorage/layering"
)

// ErrQuotaExceeded is returned when an item is larger than the configured
// per-item quota.
var ErrQuotaExceeded = errors.New("memhost: item quota exceeded")

// Option configures a Host.
type Option func(*Host)

// WithMaxItemBytes limits the size of a single item, measured as the key
// length plus the JSON encoding of its value. Zero disables the limit.
func WithMaxItemBytes(n int) Option {
	return func(h *Host) {
		if n < 0 {
			n = 0
		}
		h.maxItemBytes = n
	}
}

// WithReadOnly replaces the set of areas that reject writes. By default only
// managed is read-only. Seed ignores this setting.
func WithReadOnly(areas ...livestorage.Area) Option {
	return func(h *Host) {
		h.readOnly = make(map[livestorage.Area]bool, len(areas))
		for _, area := range areas {
			h.readOnly[area] = true
		}
	}
}

type subscriber struct {
	id      uint64
	handler livestorage.ChangeHandler
}

// Host is a thread-safe in-memory implementation of livestorage.Host.
type Host struct {
	// notifyMu keeps mutation and notification of one write together so
	// every subscriber sees writes in the same order.
	notifyMu sync.Mutex

	mu          sync.RWMutex
	areas       map[livestorage.Area]map[string]any
	subscribers []subscriber
	nextID      uint64

	maxItemBytes int
	readOnly     map[livestorage.Area]bool
	fetchErrs    map[livestorage.Area]error
	writeErr     error
}

// New returns an empty Host.
func New(opts ...Option) *Host {
	h := &Host{
		areas:     make(map[livestorage.Area]map[string]any, 3),
		readOnly:  map[livestorage.Area]bool{livestorage.AreaManaged: true},
		fetchErrs: map[livestorage.Area]error{},
	}
	for _, area := range livestorage.Areas() {
		h.areas[area] = map[string]any{}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// FetchAll returns a copy of every item in area.
func (h *Host) FetchAll(ctx context.Context, area livestorage.Area) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	items, ok := h.areas[area]
	if !ok {
		return nil, fmt.Errorf("memhost: fetch: %w: %q", livestorage.ErrUnknownArea, area)
	}
	if err := h.fetchErrs[area]; err != nil {
		return nil, err
	}
	return cloneItems(items), nil
}

// Write stores value under key and notifies subscribers when the stored
// value changed.
func (h *Host) Write(ctx context.Context, area livestorage.Area, key string, value any) error {
	if err := h.checkWrite(ctx, "write", area); err != nil {
		return err
	}
	if err := h.checkQuota(key, value); err != nil {
		return err
	}
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	h.mu.Lock()
	change, changed := h.put(area, key, value)
	subs := h.snapshotSubscribers()
	h.mu.Unlock()

	if changed {
		notify(subs, livestorage.ChangeBatch{change}, area)
	}
	return nil
}

// Remove deletes key. Removing a missing key is a no-op.
func (h *Host) Remove(ctx context.Context, area livestorage.Area, key string) error {
	if err := h.checkWrite(ctx, "remove", area); err != nil {
		return err
	}
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	h.mu.Lock()
	old, ok := h.areas[area][key]
	if ok {
		delete(h.areas[area], key)
	}
	subs := h.snapshotSubscribers()
	h.mu.Unlock()

	if ok {
		notify(subs, livestorage.ChangeBatch{{Key: key, OldValue: old, HasOld: true}}, area)
	}
	return nil
}

// SetBatch writes several keys and reports them as one batch, ordered by key.
func (h *Host) SetBatch(ctx context.Context, area livestorage.Area, items map[string]any) error {
	if err := h.checkWrite(ctx, "write", area); err != nil {
		return err
	}
	for key, value := range items {
		if err := h.checkQuota(key, value); err != nil {
			return err
		}
	}
	return h.apply(area, items)
}

// Seed stores items as the host administrator would, bypassing read-only
// areas, quotas and injected write errors. Subscribers are notified.
func (h *Host) Seed(area livestorage.Area, items map[string]any) error {
	if !area.Valid() {
		return fmt.Errorf("memhost: seed: %w: %q", livestorage.ErrUnknownArea, area)
	}
	return h.apply(area, items)
}

// Subscribe registers handler for every future change.
func (h *Host) Subscribe(handler livestorage.ChangeHandler) func() {
	if handler == nil {
		return func() {}
	}
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subscribers = append(h.subscribers, subscriber{id: id, handler: handler})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, sub := range h.subscribers {
				if sub.id == id {
					h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Host) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Get returns a copy of the value stored under key.
func (h *Host) Get(area livestorage.Area, key string) (any, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	value, ok := h.areas[area][key]
	if !ok {
		return nil, false
	}
	return layering.Clone(value), true
}

// Snapshot returns a copy of area.
func (h *Host) Snapshot(area livestorage.Area) map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return cloneItems(h.areas[area])
}

// FailFetch makes FetchAll for area return err. A nil err clears it.
func (h *Host) FailFetch(area livestorage.Area, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.fetchErrs, area)
		return
	}
	h.fetchErrs[area] = err
}

// FailWrites makes Write, Remove and SetBatch return err. A nil err clears it.
func (h *Host) FailWrites(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writeErr = err
}

func (h *Host) checkWrite(ctx context.Context, op string, area livestorage.Area) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !area.Valid() {
		return fmt.Errorf("memhost: %s: %w: %q", op, livestorage.ErrUnknownArea, area)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.readOnly[area] {
		return fmt.Errorf("memhost: %s %s: %w", op, area, livestorage.ErrReadOnlyArea)
	}
	return h.writeErr
}

func (h *Host) checkQuota(key string, value any) error {
	if h.maxItemBytes == 0 {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memhost: encode %q: %w", key, err)
	}
	if size := len(key) + len(raw); size > h.maxItemBytes {
		return fmt.Errorf("%w: %q is %d bytes, limit %d", ErrQuotaExceeded, key, size, h.maxItemBytes)
	}
	return nil
}

func (h *Host) apply(area livestorage.Area, items map[string]any) error {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	h.mu.Lock()
	batch := make(livestorage.ChangeBatch, 0, len(keys))
	for _, key := range keys {
		if change, changed := h.put(area, key, items[key]); changed {
			batch = append(batch, change)
		}
	}
	subs := h.snapshotSubscribers()
	h.mu.Unlock()

	if len(batch) > 0 {
		notify(subs, batch, area)
	}
	return nil
}

// put stores a copy of value; callers hold mu.
func (h *Host) put(area livestorage.Area, key string, value any) (livestorage.KeyChange, bool) {
	items := h.areas[area]
	old, hadOld := items[key]
	if hadOld && reflect.DeepEqual(old, value) {
		return livestorage.KeyChange{}, false
	}
	stored := layering.Clone(value)
	items[key] = stored
	return livestorage.KeyChange{
		Key:      key,
		OldValue: old,
		NewValue: stored,
		HasOld:   hadOld,
		HasNew:   true,
	}, true
}

func (h *Host) snapshotSubscribers() []subscriber {
	out := make([]subscriber, len(h.subscribers))
	copy(out, h.subscribers)
	return out
}

// notify hands every subscriber its own copy of batch.
func notify(subs []subscriber, batch livestorage.ChangeBatch, area livestorage.Area) {
	for _, sub := range subs {
		sub.handler(cloneBatch(batch), area)
	}
}

func cloneBatch(batch livestorage.ChangeBatch) livestorage.ChangeBatch {
	out := make(livestorage.ChangeBatch, len(batch))
	for i, kc := range batch {
		kc.OldValue = layering.Clone(kc.OldValue)
		kc.NewValue = layering.Clone(kc.NewValue)
		out[i] = kc
	}
	return out
}

func cloneItems(items map[string]any) map[string]any {
	out := make(map[string]any, len(items))
	for key, value := range items {
		out[key] = layering.Clone(value)
	}
	return out
}
