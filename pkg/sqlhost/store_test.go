package sqlhost_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-livestorage"
	"github.com/goliatone/go-livestorage/pkg/sqlhost"
)

func openTempHost(t *testing.T, opts ...sqlhost.Option) (*sqlhost.Host, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storage.db")
	host, err := sqlhost.Open(path, opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = host.Close() })
	return host, path
}

type batchLog struct {
	mu      sync.Mutex
	batches []livestorage.ChangeBatch
}

func (l *batchLog) handle(batch livestorage.ChangeBatch, _ livestorage.Area) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches = append(l.batches, batch)
}

func (l *batchLog) all() []livestorage.ChangeBatch {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]livestorage.ChangeBatch(nil), l.batches...)
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := sqlhost.Open(" "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestWriteFetchRoundTrip(t *testing.T) {
	host, _ := openTempHost(t)
	ctx := context.Background()

	value := map[string]any{"theme": "dark", "size": 12}
	if err := host.Write(ctx, livestorage.AreaSync, "display", value); err != nil {
		t.Fatalf("write: %v", err)
	}
	items, err := host.FetchAll(ctx, livestorage.AreaSync)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want := map[string]any{"display": map[string]any{"theme": "dark", "size": float64(12)}}
	if !reflect.DeepEqual(items, want) {
		t.Fatalf("items = %v, want %v", items, want)
	}
	local, err := host.FetchAll(ctx, livestorage.AreaLocal)
	if err != nil || len(local) != 0 {
		t.Fatalf("areas must be isolated, got %v err=%v", local, err)
	}
}

func TestItemsPersistAcrossOpen(t *testing.T) {
	host, path := openTempHost(t)
	ctx := context.Background()
	if err := host.Write(ctx, livestorage.AreaLocal, "count", 3); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := host.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := sqlhost.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	items, err := reopened.FetchAll(ctx, livestorage.AreaLocal)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if items["count"] != float64(3) {
		t.Fatalf("count = %v, want 3", items["count"])
	}
}

func TestNotifications(t *testing.T) {
	host, _ := openTempHost(t)
	var log batchLog
	unsubscribe := host.Subscribe(log.handle)
	ctx := context.Background()

	if err := host.Write(ctx, livestorage.AreaSync, "k", "a"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := host.Write(ctx, livestorage.AreaSync, "k", "a"); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := host.Write(ctx, livestorage.AreaSync, "k", "b"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := host.Remove(ctx, livestorage.AreaSync, "k"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := host.Remove(ctx, livestorage.AreaSync, "k"); err != nil {
		t.Fatalf("remove missing: %v", err)
	}

	want := []livestorage.ChangeBatch{
		{{Key: "k", NewValue: "a", HasNew: true}},
		{{Key: "k", OldValue: "a", NewValue: "b", HasOld: true, HasNew: true}},
		{{Key: "k", OldValue: "b", HasOld: true}},
	}
	if got := log.all(); !reflect.DeepEqual(got, want) {
		t.Fatalf("batches = %+v, want %+v", got, want)
	}

	unsubscribe()
	if err := host.Write(ctx, livestorage.AreaSync, "k", "c"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(log.all()) != 3 {
		t.Fatalf("unsubscribed handler was notified")
	}
}

func TestSeedBypassesReadOnly(t *testing.T) {
	clock := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	host, _ := openTempHost(t, sqlhost.WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	if err := host.Write(ctx, livestorage.AreaManaged, "policy", "open"); !errors.Is(err, livestorage.ErrReadOnlyArea) {
		t.Fatalf("expected ErrReadOnlyArea, got %v", err)
	}
	var log batchLog
	host.Subscribe(log.handle)
	if err := host.Seed(ctx, livestorage.AreaManaged, map[string]any{"b": true, "a": "x"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	batches := log.all()
	if len(batches) != 1 || len(batches[0]) != 2 || batches[0][0].Key != "a" {
		t.Fatalf("expected one ordered batch, got %+v", batches)
	}
}

func TestUnknownArea(t *testing.T) {
	host, _ := openTempHost(t)
	ctx := context.Background()
	if _, err := host.FetchAll(ctx, "session"); !errors.Is(err, livestorage.ErrUnknownArea) {
		t.Fatalf("expected ErrUnknownArea, got %v", err)
	}
	if err := host.Write(ctx, "session", "k", 1); !errors.Is(err, livestorage.ErrUnknownArea) {
		t.Fatalf("expected ErrUnknownArea, got %v", err)
	}
}

func TestWriteRejectsUnencodableValue(t *testing.T) {
	host, _ := openTempHost(t)
	if err := host.Write(context.Background(), livestorage.AreaSync, "fn", func() {}); err == nil {
		t.Fatalf("expected encode error")
	}
}

func TestStorageOverSQLite(t *testing.T) {
	host, _ := openTempHost(t)
	ctx := context.Background()
	if err := host.Seed(ctx, livestorage.AreaSync, map[string]any{"theme": "light"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	first, err := livestorage.New(host)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer first.Close()
	second, err := livestorage.New(host)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer second.Close()
	for _, store := range []*livestorage.Storage{first, second} {
		if err := store.Load(ctx, livestorage.LoadOptions{}); err != nil {
			t.Fatalf("load: %v", err)
		}
	}

	if err := first.Sync().Set("theme", "dark"); err != nil {
		t.Fatalf("set: %v", err)
	}
	first.Wait()

	if got, _ := second.Sync().Get("theme"); got != "dark" {
		t.Fatalf("second context sees %v, want dark", got)
	}
	items, err := host.FetchAll(ctx, livestorage.AreaSync)
	if err != nil || items["theme"] != "dark" {
		t.Fatalf("database holds %v err=%v", items, err)
	}
}
