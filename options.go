package livestorage

import (
	"log/slog"
	"strings"
	"time"

	"github.com/goliatone/go-livestorage/pkg/activity"
)

// Option configures a Storage at construction.
type Option func(*config)

type config struct {
	logger         *slog.Logger
	errorHandler   ErrorHandler
	evaluator      Evaluator
	programCache   ProgramCache
	functions      *FunctionRegistry
	evalLogger     EvaluatorLogger
	activityHooks  activity.Hooks
	activityConfig activity.Config
	contextID      string
	hostTimeout    time.Duration
}

func applyOptions(opts []Option) config {
	cfg := config{
		activityConfig: activity.Config{Enabled: true, Channel: activity.DefaultChannel},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithErrorHandler replaces the default onError hook, which logs a warning.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(cfg *config) {
		cfg.errorHandler = handler
	}
}

// WithEvaluator sets the engine used to compile ListenerOptions.When.
// Defaults to the expr engine.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *config) {
		cfg.evaluator = e
	}
}

// WithProgramCache registers a cache for compiled predicates.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *config) {
		cfg.programCache = cache
	}
}

// WithActivityHooks attaches activity hooks. Hooks are cloned and nil entries
// dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *config) {
		cfg.activityHooks = normalized
	}
}

// WithActivityConfig overrides the activity emitter settings. Emission is
// enabled by default whenever hooks are attached.
func WithActivityConfig(activityCfg activity.Config) Option {
	return func(cfg *config) {
		cfg.activityConfig = activityCfg
	}
}

// WithContextID names the execution context owning the storage. A random
// UUID is used when empty.
func WithContextID(id string) Option {
	return func(cfg *config) {
		cfg.contextID = strings.TrimSpace(id)
	}
}

// WithHostTimeout bounds every forwarded host write. Zero means no timeout.
func WithHostTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		if timeout < 0 {
			timeout = 0
		}
		cfg.hostTimeout = timeout
	}
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}
