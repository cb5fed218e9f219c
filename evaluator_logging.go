package livestorage

import "time"

// EvaluatorLogEvent describes a predicate evaluation for logging.
type EvaluatorLogEvent struct {
	Engine   string
	Expr     string
	Target   string
	Duration time.Duration
	Matched  bool
	Err      error
}

// EvaluatorLogger records evaluator events.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

// LogEvaluation implements EvaluatorLogger.
func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvaluatorLogger struct{}

func (noopEvaluatorLogger) LogEvaluation(EvaluatorLogEvent) {}

// WithEvaluatorLogger attaches a logger that observes every predicate
// evaluation.
func WithEvaluatorLogger(logger EvaluatorLogger) Option {
	return func(cfg *config) {
		if logger == nil {
			cfg.evalLogger = noopEvaluatorLogger{}
			return
		}
		cfg.evalLogger = logger
	}
}
