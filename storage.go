package livestorage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-livestorage/pkg/activity"
	"github.com/google/uuid"
)

// Storage mirrors every area of a Host for one execution context. Build one
// per context with New and share it explicitly; there is no package level
// instance.
type Storage struct {
	host Host
	cfg  config
	id   string

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	gate  updateGate
	views map[Area]*View

	listeners *listenerRegistry
	writes    *writeQueue
	emitter   *activity.Emitter

	// dispatchMu orders load replays and change batches so one batch is
	// applied and delivered before the next starts.
	dispatchMu  sync.Mutex
	dispatching atomic.Int32

	loadMu sync.Mutex
	loaded atomic.Bool
	closed atomic.Bool

	// subscribed stays true after Close; unsubscribe may be nil for hosts
	// that cannot detach.
	subMu       sync.Mutex
	subscribed  bool
	unsubscribe func()

	handlerMu    sync.RWMutex
	errorHandler ErrorHandler

	evalMu    sync.Mutex
	evaluator Evaluator
}

// New builds a Storage over host. Views start empty until Load.
func New(host Host, opts ...Option) (*Storage, error) {
	if host == nil {
		return nil, ErrNilHost
	}
	cfg := applyOptions(opts)
	id := cfg.contextID
	if id == "" {
		id = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Storage{
		host:         host,
		cfg:          cfg,
		id:           id,
		ctx:          ctx,
		cancel:       cancel,
		views:        make(map[Area]*View, len(areaOrder)),
		listeners:    newListenerRegistry(),
		emitter:      activity.NewEmitter(cfg.activityHooks, cfg.activityConfig),
		errorHandler: cfg.errorHandler,
		evaluator:    cfg.evaluator,
	}
	s.gate.mu = &s.mu
	for _, area := range areaOrder {
		s.views[area] = newView(area, s)
	}
	s.writes = newWriteQueue(s.runHostOp)
	return s, nil
}

// ContextID identifies the execution context owning this storage.
func (s *Storage) ContextID() string {
	return s.id
}

func (s *Storage) Sync() *View {
	return s.views[AreaSync]
}

func (s *Storage) Local() *View {
	return s.views[AreaLocal]
}

// Managed returns the read-only view of the managed area.
func (s *Storage) Managed() *View {
	return s.views[AreaManaged]
}

// View returns the view for area.
func (s *Storage) View(area Area) (*View, error) {
	view, ok := s.views[area]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownArea, area)
	}
	return view, nil
}

// Loaded reports whether Load has completed successfully at least once.
func (s *Storage) Loaded() bool {
	return s.loaded.Load()
}

// Updating reports whether an externally sourced batch is being applied.
func (s *Storage) Updating() bool {
	return s.gate.open()
}

// SetErrorHandler replaces the hook receiving failed host writes. A nil
// handler restores the default warning log.
func (s *Storage) SetErrorHandler(handler ErrorHandler) {
	s.handlerMu.Lock()
	s.errorHandler = handler
	s.handlerMu.Unlock()
}

// ErrorHandler returns the active error hook.
func (s *Storage) ErrorHandler() ErrorHandler {
	s.handlerMu.RLock()
	handler := s.errorHandler
	s.handlerMu.RUnlock()
	if handler == nil {
		return s.logError
	}
	return handler
}

// Wait blocks until every forwarded write has been acknowledged or failed.
// It must not be called from a listener.
func (s *Storage) Wait() {
	s.writes.wait()
}

// Close stops receiving host changes and waits for forwarded writes. Writes
// issued after Close are rejected with ErrClosed.
//
// Close may be called from a listener. While listeners are running it
// returns without waiting, and forwarded writes finish in the background.
func (s *Storage) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.subMu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.subMu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	if s.dispatching.Load() > 0 {
		// The queued writes may be blocked on the dispatch running the caller.
		go func() {
			s.writes.wait()
			s.cancel()
		}()
		return nil
	}
	s.writes.wait()
	s.cancel()
	return nil
}

func (s *Storage) subscribe() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subscribed || s.closed.Load() {
		return
	}
	s.subscribed = true
	s.unsubscribe = s.host.Subscribe(s.handleChanges)
}

func (s *Storage) logger() *slog.Logger {
	if s.cfg.logger != nil {
		return s.cfg.logger
	}
	return slog.Default()
}

func (s *Storage) logError(message string, info ErrorInfo) {
	attrs := []any{
		"action", info.Action,
		"area", info.Area,
		"key", info.Key,
		"context", s.id,
	}
	if info.HasValue {
		attrs = append(attrs, "value", info.Value)
	}
	s.logger().Warn(message, attrs...)
}

func (s *Storage) reportError(err error, info ErrorInfo) {
	s.emitWriteFailed(info)
	defer func() {
		if r := recover(); r != nil {
			s.logger().Error("livestorage: error handler panicked", "panic", r, "key", info.Key)
		}
	}()
	s.ErrorHandler()(err.Error(), info)
}

func (s *Storage) evaluatorLogger() EvaluatorLogger {
	if s.cfg.evalLogger != nil {
		return s.cfg.evalLogger
	}
	return noopEvaluatorLogger{}
}

func (s *Storage) currentEvaluator() Evaluator {
	s.evalMu.Lock()
	defer s.evalMu.Unlock()
	return s.evaluator
}

func (s *Storage) resolveEvaluator() (Evaluator, error) {
	s.evalMu.Lock()
	defer s.evalMu.Unlock()
	if s.evaluator != nil {
		return s.evaluator, nil
	}
	evaluator, err := NewEvaluatorByName(EngineExpr, s.cfg.programCache, s.cfg.functions)
	if err != nil {
		return nil, err
	}
	s.evaluator = evaluator
	return evaluator, nil
}
