package livestorage

import (
	"fmt"
	"time"
)

// Evaluate runs expr against the value currently stored under key in area.
// The change bindings describe the stored value as a load-time change, so
// value, newValue and hasNew are set when the key exists.
func (s *Storage) Evaluate(area Area, key, expr string) (any, error) {
	view, err := s.View(area)
	if err != nil {
		return nil, err
	}
	change := Change{Key: key, Area: area}
	if value, ok := view.Get(key); ok {
		change.Value = value
		change.NewValue = value
		change.HasNew = true
	}
	return s.EvaluateWith(RuleContext{Change: change}, expr)
}

// EvaluateWith runs expr with the configured evaluator against ctx.
func (s *Storage) EvaluateWith(ctx RuleContext, expr string) (any, error) {
	if expr == "" {
		return nil, fmt.Errorf("livestorage: expression must not be empty")
	}
	evaluator, err := s.resolveEvaluator()
	if err != nil {
		return nil, err
	}
	ctx = ctx.withDefaults()
	start := time.Now()
	value, evalErr := evaluator.Evaluate(ctx, expr)
	evalErr = wrapEvaluationError("", expr, ctx.target(), evalErr)
	matched, _ := value.(bool)
	s.evaluatorLogger().LogEvaluation(EvaluatorLogEvent{
		Engine:   evaluatorEngineName(evaluator),
		Expr:     expr,
		Target:   ctx.target(),
		Duration: time.Since(start),
		Matched:  evalErr == nil && matched,
		Err:      evalErr,
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return value, nil
}
