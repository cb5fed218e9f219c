package livestorage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Function represents a callable exposed to listener predicates.
type Function func(args ...any) (any, error)

// FunctionRegistry stores custom predicate functions keyed by name.
// Lookups are case-insensitive; Names reports the registered spelling.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]registeredFunction
}

type registeredFunction struct {
	name string
	fn   Function
}

func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]registeredFunction),
	}
}

// Register stores fn under name, rejecting duplicates.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("livestorage: function %q is nil", name)
	}
	if name == "" {
		return fmt.Errorf("livestorage: function name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]registeredFunction)
	}
	key := strings.ToLower(name)
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("livestorage: function %q already registered", name)
	}
	r.functions[key] = registeredFunction{name: name, fn: fn}
	return nil
}

// Clone returns a shallow copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{
		functions: make(map[string]registeredFunction, len(r.functions)),
	}
	for key, entry := range r.functions {
		clone.functions[key] = entry
	}
	return clone
}

func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("livestorage: function registry is nil")
	}
	r.mu.RLock()
	entry := r.functions[strings.ToLower(name)]
	r.mu.RUnlock()
	fn := entry.fn
	if fn == nil {
		return nil, fmt.Errorf("livestorage: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for _, entry := range r.functions {
		names = append(names, entry.name)
	}
	sort.Strings(names)
	return names
}

// WithFunctionRegistry exposes registry to listener predicates.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *config) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithCustomFunction registers fn under name for listener predicates.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *config) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		_ = cfg.functions.Register(name, fn)
	}
}
