package livestorage

import (
	"fmt"
	"time"
)

// Evaluator executes listener predicate expressions against a change.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct {
	skipCache bool
}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// WithoutProgramCache compiles the expression without reading or filling
// the evaluator's ProgramCache.
func WithoutProgramCache() CompileOption {
	return compileOptionFunc(func(cfg *compileConfig) {
		cfg.skipCache = true
	})
}

func applyCompileOptions(opts []CompileOption) compileConfig {
	cfg := compileConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyCompileOption(&cfg)
		}
	}
	return cfg
}

// engineNamer is implemented by the built-in evaluators.
type engineNamer interface {
	engineName() string
}

// RuleContext carries the inputs of a predicate evaluation.
type RuleContext struct {
	Change   Change
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
}

// predicateVariables lists the change bindings every engine exposes.
var predicateVariables = []string{
	"key",
	"area",
	"value",
	"oldValue",
	"newValue",
	"hasOld",
	"hasNew",
	"load",
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) withDefaults() RuleContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

func (ctx RuleContext) target() string {
	if ctx.Change.Key == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s/%s", ctx.Change.Area, ctx.Change.Key)
}

func (ctx RuleContext) bindings() map[string]any {
	change := ctx.Change
	value := change.Value
	if !change.Load && change.HasNew {
		value = change.NewValue
	}
	return map[string]any{
		"key":      change.Key,
		"area":     string(change.Area),
		"value":    value,
		"oldValue": change.OldValue,
		"newValue": change.NewValue,
		"hasOld":   change.HasOld,
		"hasNew":   change.HasNew,
		"load":     change.Load,
		"now":      ctx.timestamp(),
		"args":     ctx.Args,
		"metadata": ctx.Metadata,
	}
}
