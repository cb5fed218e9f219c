// Package sqlhost provides a SQLite-backed livestorage.Host.
//
// Items are stored as JSON text, one row per area and key, so values fetched
// back follow encoding/json decoding rules: numbers become float64 and
// objects become map[string]any. Change notifications are delivered to
// subscribers of the same Host value; other processes sharing the database
// file only observe changes on their next Load.
package sqlhost

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-livestorage"
	"github.com/goliatone/go-livestorage/layering"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS storage_items (
	area       TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	value      TEXT    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (area, key)
)`

// Option configures a Host.
type Option func(*Host)

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

// WithClock overrides the time source used for updated_at.
func WithClock(now func() time.Time) Option {
	return func(h *Host) {
		if now != nil {
			h.now = now
		}
	}
}

type subscriber struct {
	id      uint64
	handler livestorage.ChangeHandler
}

// Host persists storage areas in SQLite.
type Host struct {
	sqlDB *sql.DB

	// notifyMu keeps a committed write and its notification together.
	notifyMu sync.Mutex

	mu          sync.RWMutex
	subscribers []subscriber
	nextID      uint64

	readOnly map[livestorage.Area]bool
	now      func() time.Time
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string, opts ...Option) (*Host, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlhost: storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlhost: open sqlite db: %w", err)
	}
	// One connection: writers are serialised.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlhost: ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlhost: apply schema: %w", err)
	}

	h := &Host{
		sqlDB:    sqlDB,
		readOnly: map[livestorage.Area]bool{livestorage.AreaManaged: true},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Close closes the database handle.
func (h *Host) Close() error {
	if h == nil || h.sqlDB == nil {
		return nil
	}
	return h.sqlDB.Close()
}

// FetchAll returns every item stored in area.
func (h *Host) FetchAll(ctx context.Context, area livestorage.Area) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !area.Valid() {
		return nil, fmt.Errorf("sqlhost: fetch: %w: %q", livestorage.ErrUnknownArea, area)
	}
	rows, err := h.sqlDB.QueryContext(ctx, `SELECT key, value FROM storage_items WHERE area = ?`, string(area))
	if err != nil {
		return nil, fmt.Errorf("sqlhost: fetch %s: %w", area, err)
	}
	defer rows.Close()

	items := map[string]any{}
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("sqlhost: scan %s: %w", area, err)
		}
		value, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("sqlhost: decode %s/%s: %w", area, key, err)
		}
		items[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlhost: fetch %s: %w", area, err)
	}
	return items, nil
}

// Write stores value under key and notifies subscribers when the stored
// JSON changed.
func (h *Host) Write(ctx context.Context, area livestorage.Area, key string, value any) error {
	if err := h.checkWrite(ctx, "write", area); err != nil {
		return err
	}
	return h.apply(ctx, area, map[string]any{key: value})
}

// Seed stores items as the host administrator would, bypassing read-only
// areas. Subscribers receive one batch ordered by key.
func (h *Host) Seed(ctx context.Context, area livestorage.Area, items map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !area.Valid() {
		return fmt.Errorf("sqlhost: seed: %w: %q", livestorage.ErrUnknownArea, area)
	}
	return h.apply(ctx, area, items)
}

// Remove deletes key. Removing a missing key is a no-op.
func (h *Host) Remove(ctx context.Context, area livestorage.Area, key string) error {
	if err := h.checkWrite(ctx, "remove", area); err != nil {
		return err
	}
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	tx, err := h.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlhost: begin remove: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	old, found, err := selectValue(ctx, tx, area, key)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM storage_items WHERE area = ? AND key = ?`, string(area), key); err != nil {
		return fmt.Errorf("sqlhost: remove %s/%s: %w", area, key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlhost: commit remove: %w", err)
	}

	oldValue, err := decodeValue(old)
	if err != nil {
		return fmt.Errorf("sqlhost: decode %s/%s: %w", area, key, err)
	}
	h.notify(livestorage.ChangeBatch{{Key: key, OldValue: oldValue, HasOld: true}}, area)
	return nil
}

// Subscribe registers handler for changes made through this Host.
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

func (h *Host) checkWrite(ctx context.Context, op string, area livestorage.Area) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !area.Valid() {
		return fmt.Errorf("sqlhost: %s: %w: %q", op, livestorage.ErrUnknownArea, area)
	}
	if h.readOnly[area] {
		return fmt.Errorf("sqlhost: %s %s: %w", op, area, livestorage.ErrReadOnlyArea)
	}
	return nil
}

func (h *Host) apply(ctx context.Context, area livestorage.Area, items map[string]any) error {
	keys := make([]string, 0, len(items))
	encoded := make(map[string]string, len(items))
	for key, value := range items {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("sqlhost: encode %s/%s: %w", area, key, err)
		}
		keys = append(keys, key)
		encoded[key] = string(raw)
	}
	sort.Strings(keys)

	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	tx, err := h.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlhost: begin write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	updatedAt := h.now().UTC().UnixMilli()
	batch := make(livestorage.ChangeBatch, 0, len(keys))
	for _, key := range keys {
		raw := encoded[key]
		old, found, err := selectValue(ctx, tx, area, key)
		if err != nil {
			return err
		}
		if found && old == raw {
			continue
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO storage_items (area, key, value, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(area, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			string(area), key, raw, updatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlhost: write %s/%s: %w", area, key, err)
		}
		change, err := keyChange(key, old, found, raw)
		if err != nil {
			return fmt.Errorf("sqlhost: decode %s/%s: %w", area, key, err)
		}
		batch = append(batch, change)
	}
	if len(batch) == 0 {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlhost: commit write: %w", err)
	}
	h.notify(batch, area)
	return nil
}

func (h *Host) notify(batch livestorage.ChangeBatch, area livestorage.Area) {
	h.mu.RLock()
	subs := make([]subscriber, len(h.subscribers))
	copy(subs, h.subscribers)
	h.mu.RUnlock()
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

func selectValue(ctx context.Context, tx *sql.Tx, area livestorage.Area, key string) (string, bool, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT value FROM storage_items WHERE area = ? AND key = ?`, string(area), key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlhost: read %s/%s: %w", area, key, err)
	}
	return raw, true, nil
}

func keyChange(key, old string, hadOld bool, raw string) (livestorage.KeyChange, error) {
	change := livestorage.KeyChange{Key: key, HasOld: hadOld, HasNew: true}
	if hadOld {
		oldValue, err := decodeValue(old)
		if err != nil {
			return livestorage.KeyChange{}, err
		}
		change.OldValue = oldValue
	}
	newValue, err := decodeValue(raw)
	if err != nil {
		return livestorage.KeyChange{}, err
	}
	change.NewValue = newValue
	return change, nil
}

func decodeValue(raw string) (any, error) {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, err
	}
	return value, nil
}
