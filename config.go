package livestorage

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-livestorage/pkg/activity"
)

// Config holds the settings a host process usually supplies through its
// environment.
type Config struct {
	LoadSync        bool          `env:"LIVESTORAGE_LOAD_SYNC" envDefault:"true"`
	LoadLocal       bool          `env:"LIVESTORAGE_LOAD_LOCAL" envDefault:"true"`
	LoadManaged     bool          `env:"LIVESTORAGE_LOAD_MANAGED" envDefault:"false"`
	PredicateEngine string        `env:"LIVESTORAGE_PREDICATE_ENGINE" envDefault:"expr"`
	ActivityEnabled bool          `env:"LIVESTORAGE_ACTIVITY_ENABLED" envDefault:"true"`
	ActivityChannel string        `env:"LIVESTORAGE_ACTIVITY_CHANNEL" envDefault:"storage"`
	HostTimeout     time.Duration `env:"LIVESTORAGE_HOST_TIMEOUT" envDefault:"0s"`
}

// ConfigFromEnv parses Config from environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("livestorage: parse env: %w", err)
	}
	return cfg, nil
}

// Options translates the config into storage options. cache and registry
// are handed to the selected predicate engine and may be nil.
func (c Config) Options(cache ProgramCache, registry *FunctionRegistry) ([]Option, error) {
	evaluator, err := NewEvaluatorByName(c.PredicateEngine, cache, registry)
	if err != nil {
		return nil, err
	}
	return []Option{
		WithEvaluator(evaluator),
		WithActivityConfig(activity.Config{Enabled: c.ActivityEnabled, Channel: c.ActivityChannel}),
		WithHostTimeout(c.HostTimeout),
	}, nil
}

// LoadOptions returns the area selection described by the config.
func (c Config) LoadOptions() LoadOptions {
	return LoadOptions{Areas: Select(c.LoadSync, c.LoadLocal, c.LoadManaged)}
}
