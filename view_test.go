package livestorage_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-livestorage"
	"github.com/goliatone/go-livestorage/pkg/memhost"
)

func TestSetAppliesLocallyAndForwards(t *testing.T) {
	host := memhost.New()
	store := newStorage(t, host)
	if err := store.Load(context.Background(), livestorage.LoadOptions{}); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := store.Sync().Set("theme", "dark"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := store.Sync().Get("theme"); got != "dark" {
		t.Fatalf("set must be visible immediately, got %v", got)
	}
	store.Wait()
	if got, _ := host.Get(livestorage.AreaSync, "theme"); got != "dark" {
		t.Fatalf("expected host to hold the write, got %v", got)
	}

	if err := store.Sync().Delete("theme"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if store.Sync().Has("theme") {
		t.Fatalf("delete must be visible immediately")
	}
	store.Wait()
	if _, ok := host.Get(livestorage.AreaSync, "theme"); ok {
		t.Fatalf("expected host removal")
	}
}

func TestManagedWritesAreRejected(t *testing.T) {
	host := newScriptedHost(nil)
	store := newStorage(t, host)

	err := store.Managed().Set("policy", "open")
	if !errors.Is(err, livestorage.ErrReadOnlyArea) {
		t.Fatalf("expected ErrReadOnlyArea, got %v", err)
	}
	var areaErr *livestorage.AreaError
	if !errors.As(err, &areaErr) || areaErr.Area != livestorage.AreaManaged || areaErr.Key != "policy" || areaErr.Op != livestorage.ActionSet {
		t.Fatalf("unexpected error details %v", err)
	}
	if err := store.Managed().Delete("policy"); !errors.Is(err, livestorage.ErrReadOnlyArea) {
		t.Fatalf("expected ErrReadOnlyArea on delete, got %v", err)
	}
	store.Wait()
	if store.Managed().Len() != 0 {
		t.Fatalf("managed view must not change")
	}
	if got := host.writeLog(); len(got) != 0 {
		t.Fatalf("managed writes must never reach the host, got %v", got)
	}
}

func TestHostFailureReportsErrorAndKeepsValue(t *testing.T) {
	host := memhost.New(memhost.WithMaxItemBytes(32))
	var (
		mu      sync.Mutex
		reports []livestorage.ErrorInfo
		message string
	)
	store := newStorage(t, host, livestorage.WithErrorHandler(func(msg string, info livestorage.ErrorInfo) {
		mu.Lock()
		defer mu.Unlock()
		message = msg
		reports = append(reports, info)
	}))
	if err := store.Load(context.Background(), livestorage.LoadOptions{}); err != nil {
		t.Fatalf("load: %v", err)
	}

	huge := strings.Repeat("x", 256)
	if err := store.Sync().Set("payload", huge); err != nil {
		t.Fatalf("host failures must not be returned, got %v", err)
	}
	store.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 1 {
		t.Fatalf("expected one error report, got %d", len(reports))
	}
	info := reports[0]
	if info.Action != livestorage.ActionSet || info.Area != livestorage.AreaSync || info.Key != "payload" {
		t.Fatalf("unexpected error info %+v", info)
	}
	if !info.HasValue || info.Value != huge {
		t.Fatalf("error info must carry the value")
	}
	if !errors.Is(info.Err, memhost.ErrQuotaExceeded) || !strings.Contains(message, "quota") {
		t.Fatalf("expected quota error, got %v (%q)", info.Err, message)
	}
	if got, _ := store.Sync().Get("payload"); got != huge {
		t.Fatalf("optimistic value must be kept")
	}
}

func TestRemoveFailureOmitsValue(t *testing.T) {
	host := memhost.New()
	seed(t, host, livestorage.AreaLocal, map[string]any{"k": 1})
	var (
		mu   sync.Mutex
		info livestorage.ErrorInfo
	)
	store := newStorage(t, host)
	store.SetErrorHandler(func(_ string, got livestorage.ErrorInfo) {
		mu.Lock()
		defer mu.Unlock()
		info = got
	})
	if err := store.Load(context.Background(), livestorage.LoadOptions{}); err != nil {
		t.Fatalf("load: %v", err)
	}
	host.FailWrites(errors.New("offline"))
	if err := store.Local().Delete("k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	store.Wait()

	mu.Lock()
	defer mu.Unlock()
	if info.Action != livestorage.ActionRemove || info.HasValue || info.Key != "k" {
		t.Fatalf("unexpected error info %+v", info)
	}
}

func TestPanickingErrorHandlerIsContained(t *testing.T) {
	host := memhost.New()
	host.FailWrites(errors.New("offline"))
	store := newStorage(t, host, livestorage.WithErrorHandler(func(string, livestorage.ErrorInfo) {
		panic("handler failure")
	}))
	if err := store.Sync().Set("a", 1); err != nil {
		t.Fatalf("set: %v", err)
	}
	store.Wait()
	host.FailWrites(nil)
	if err := store.Sync().Set("b", 2); err != nil {
		t.Fatalf("set: %v", err)
	}
	store.Wait()
	if _, ok := host.Get(livestorage.AreaSync, "b"); !ok {
		t.Fatalf("writes must keep flowing after a handler panic")
	}
}

func TestViewReturnsCopies(t *testing.T) {
	store := newStorage(t, memhost.New())
	value := map[string]any{"list": []any{1, 2}}
	if err := store.Local().Set("k", value); err != nil {
		t.Fatalf("set: %v", err)
	}
	value["list"] = nil

	got, _ := store.Local().Get("k")
	got.(map[string]any)["list"] = "changed"
	snapshot := store.Local().Snapshot()
	want := map[string]any{"k": map[string]any{"list": []any{1, 2}}}
	if !reflect.DeepEqual(snapshot, want) {
		t.Fatalf("view shares memory with callers: %v", snapshot)
	}
}

func TestViewAccessors(t *testing.T) {
	store := newStorage(t, memhost.New())
	for _, key := range []string{"b", "a", "c"} {
		if err := store.Sync().Set(key, key); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if got := store.Sync().Keys(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("expected sorted keys, got %v", got)
	}
	if store.Sync().Len() != 3 {
		t.Fatalf("expected 3 items")
	}
	view, err := store.View(livestorage.AreaSync)
	if err != nil || view != store.Sync() {
		t.Fatalf("View(sync) must return the sync view")
	}
	if _, err := store.View("session"); !errors.Is(err, livestorage.ErrUnknownArea) {
		t.Fatalf("expected ErrUnknownArea, got %v", err)
	}
}

func TestWritesAfterCloseAreRejected(t *testing.T) {
	host := memhost.New()
	store := newStorage(t, host)
	if err := store.Load(context.Background(), livestorage.LoadOptions{}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.Sync().Set("k", 1); !errors.Is(err, livestorage.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if host.Subscribers() != 0 {
		t.Fatalf("close must unsubscribe")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestWritesPropagateAcrossContexts(t *testing.T) {
	host := memhost.New()
	popup := newStorage(t, host, livestorage.WithContextID("popup"))
	background := newStorage(t, host, livestorage.WithContextID("background"))
	ctx := context.Background()
	for _, store := range []*livestorage.Storage{popup, background} {
		if err := store.Load(ctx, livestorage.LoadOptions{}); err != nil {
			t.Fatalf("load %s: %v", store.ContextID(), err)
		}
	}

	var log changeLog
	background.AddListener("theme", log.listener(), livestorage.ListenerOptions{Area: livestorage.AreaSync})

	if err := popup.Sync().Set("theme", "dark"); err != nil {
		t.Fatalf("set: %v", err)
	}
	popup.Wait()

	if got, _ := background.Sync().Get("theme"); got != "dark" {
		t.Fatalf("expected background to see the write, got %v", got)
	}
	changes := log.all()
	if len(changes) != 1 || changes[0].NewValue != "dark" || changes[0].HasOld {
		t.Fatalf("unexpected background changes %+v", changes)
	}
}

func TestCloseFromListenerWithPendingWrite(t *testing.T) {
	host := memhost.New()
	store := newStorage(t, host)
	if err := store.Load(context.Background(), livestorage.LoadOptions{}); err != nil {
		t.Fatalf("load: %v", err)
	}

	closed := make(chan error, 1)
	_, err := store.AddListener("logout", func(livestorage.Change) {
		if err := store.Local().Set("session", "ended"); err != nil {
			t.Errorf("set: %v", err)
		}
		closed <- store.Close()
	}, livestorage.ListenerOptions{Area: livestorage.AreaSync})
	if err != nil {
		t.Fatalf("add listener: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- host.Seed(livestorage.AreaSync, map[string]any{"logout": true}) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Close from a listener never returned")
	}
	if err := <-closed; err != nil {
		t.Fatalf("close: %v", err)
	}

	store.Wait()
	if got, ok := host.Get(livestorage.AreaLocal, "session"); !ok || got != "ended" {
		t.Fatalf("expected the pending write to finish, got %v (%v)", got, ok)
	}
	if host.Subscribers() != 0 {
		t.Fatalf("close must unsubscribe")
	}
	if err := store.Local().Set("x", 1); !errors.Is(err, livestorage.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
