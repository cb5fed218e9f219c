package livestorage

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Listener is invoked with every matching change for its key.
type Listener func(Change)

// ListenerID identifies one registration; it is the handle RemoveListener
// matches on.
type ListenerID string

// ListenerOptions filter which changes reach a listener.
type ListenerOptions struct {
	// Area restricts the listener to one area. Empty matches every area.
	Area Area
	// OnLoad also runs the listener for each matching key during Load.
	// Defaults to false.
	OnLoad bool
	// When is an optional predicate compiled by the storage Evaluator. The
	// listener only runs when it evaluates to true. Empty always matches.
	When string
	// NoProgramCache compiles When without the shared ProgramCache.
	NoProgramCache bool
}

type listenerEntry struct {
	id   ListenerID
	fn   Listener
	opts ListenerOptions
	rule CompiledRule
}

func (e listenerEntry) accepts(area Area, isLoad bool) bool {
	if isLoad && !e.opts.OnLoad {
		return false
	}
	if e.opts.Area != "" && e.opts.Area != area {
		return false
	}
	return true
}

type listenerRegistry struct {
	mu    sync.RWMutex
	byKey map[string][]listenerEntry
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{byKey: map[string][]listenerEntry{}}
}

func (r *listenerRegistry) add(key string, entry listenerEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[key] = append(r.byKey[key], entry)
}

// remove drops entries for key matching id and, when area is set, area.
func (r *listenerRegistry) remove(key string, id ListenerID, area Area) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, ok := r.byKey[key]
	if !ok {
		return 0
	}
	kept := entries[:0]
	removed := 0
	for _, entry := range entries {
		if entry.id == id && (area == "" || entry.opts.Area == area) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	for i := len(kept); i < len(entries); i++ {
		entries[i] = listenerEntry{}
	}
	if len(kept) == 0 {
		delete(r.byKey, key)
		return removed
	}
	r.byKey[key] = kept
	return removed
}

func (r *listenerRegistry) has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey[key]) > 0
}

func (r *listenerRegistry) count(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey[key])
}

// snapshot returns the registrations for key in registration order.
func (r *listenerRegistry) snapshot(key string) []listenerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.byKey[key]
	if len(entries) == 0 {
		return nil
	}
	out := make([]listenerEntry, len(entries))
	copy(out, entries)
	return out
}

// AddListener registers fn for changes to key. Registrations for the same key
// run in the order they were added.
func (s *Storage) AddListener(key string, fn Listener, opts ListenerOptions) (ListenerID, error) {
	if fn == nil {
		return "", ErrNilListener
	}
	if opts.Area != "" && !opts.Area.Valid() {
		return "", fmt.Errorf("livestorage: add listener %q: %w: %q", key, ErrUnknownArea, opts.Area)
	}
	entry := listenerEntry{
		id:   ListenerID(uuid.NewString()),
		fn:   fn,
		opts: opts,
	}
	if when := strings.TrimSpace(opts.When); when != "" {
		evaluator, err := s.resolveEvaluator()
		if err != nil {
			return "", err
		}
		var compileOpts []CompileOption
		if opts.NoProgramCache {
			compileOpts = append(compileOpts, WithoutProgramCache())
		}
		rule, err := evaluator.Compile(when, compileOpts...)
		if err != nil {
			return "", fmt.Errorf("livestorage: add listener %q: %w", key, err)
		}
		entry.opts.When = when
		entry.rule = rule
	}
	s.listeners.add(key, entry)
	return entry.id, nil
}

// RemoveListener removes the registration id from key. When opts.Area is set
// only a registration scoped to that area matches. It returns the number of
// registrations removed.
func (s *Storage) RemoveListener(key string, id ListenerID, opts ListenerOptions) int {
	return s.listeners.remove(key, id, opts.Area)
}

// HasListeners reports whether any listener is registered for key.
func (s *Storage) HasListeners(key string) bool {
	return s.listeners.has(key)
}

func (s *Storage) callListeners(key string, change Change, isLoad bool) {
	for _, entry := range s.listeners.snapshot(key) {
		if !entry.accepts(change.Area, isLoad) {
			continue
		}
		if entry.rule != nil && !s.matches(entry, change) {
			continue
		}
		s.invoke(entry, change)
	}
}

func (s *Storage) invoke(entry listenerEntry, change Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger().Error("livestorage: listener panicked",
				"key", change.Key,
				"area", change.Area,
				"listener", entry.id,
				"panic", r,
			)
		}
	}()
	entry.fn(change)
}

func (s *Storage) matches(entry listenerEntry, change Change) bool {
	ctx := RuleContext{Change: change}.withDefaults()
	start := time.Now()
	result, err := entry.rule.Evaluate(ctx)
	matched, isBool := result.(bool)
	if err == nil && !isBool {
		err = fmt.Errorf("livestorage: predicate %q returned %T, want bool", entry.opts.When, result)
	}
	s.evaluatorLogger().LogEvaluation(EvaluatorLogEvent{
		Engine:   evaluatorEngineName(s.currentEvaluator()),
		Expr:     entry.opts.When,
		Target:   ctx.target(),
		Duration: time.Since(start),
		Matched:  err == nil && matched,
		Err:      err,
	})
	if err != nil {
		s.logger().Warn("livestorage: listener predicate failed",
			"key", change.Key,
			"area", change.Area,
			"listener", entry.id,
			"error", err,
		)
		return false
	}
	return matched
}
