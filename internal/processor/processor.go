package processor

import (
	"log/slog"

	"github.com/finsite/stock-backtest-engine/internal/schema"
)

// Processor validates backtest job messages and runs the backtest simulation
type Processor struct {
	logger    *slog.Logger
	validator *schema.Validator
}

// New creates a new Processor. A nil validator gets the default job schema.
func New(logger *slog.Logger, validator *schema.Validator) *Processor {
	if validator == nil {
		validator = schema.New()
	}
	return &Processor{
		logger:    logger,
		validator: validator,
	}
}

// ValidateInputMessage checks msg against the job schema and returns it
// unchanged as a ValidatedMessage. On failure it returns an
// *InvalidFormatError matching ErrInvalidFormat.
func (p *Processor) ValidateInputMessage(msg Message) (ValidatedMessage, error) {
	p.logger.Debug("Validating message schema")

	if fieldErrors := p.validator.ValidateMessage(msg); len(fieldErrors) > 0 {
		p.logger.Error("Invalid message schema",
			slog.Any("message", map[string]any(msg)),
			slog.Any("fields", fieldErrors),
		)
		return nil, &InvalidFormatError{Message: msg, Fields: fieldErrors}
	}

	return ValidatedMessage(msg), nil
}

// RunBacktestJob simulates the execution of a backtest job. Missing
// identifying fields fall back to defaults. The returned Result holds every
// key of msg, overlaid with the job fields, status and metrics; msg itself
// is not modified.
func (p *Processor) RunBacktestJob(msg ValidatedMessage) Result {
	jobID := lookup(msg, KeyJobID, DefaultJobID)
	strategy := lookup(msg, KeyStrategy, DefaultStrategy)
	symbol := lookup(msg, KeySymbol, DefaultSymbol)

	p.logger.Info("Running backtest job",
		slog.Any("job_id", jobID),
		slog.Any("symbol", symbol),
		slog.Any("strategy", strategy),
	)

	// Placeholder simulated result
	simulated := map[string]any{
		KeyJobID:    jobID,
		KeySymbol:   symbol,
		KeyStrategy: strategy,
		KeyStatus:   StatusCompleted,
		KeyMetrics: map[string]any{
			"return_pct":   ReturnPct,
			"sharpe_ratio": SharpeRatio,
			"max_drawdown": MaxDrawdown,
		},
	}

	result := make(Result, len(msg)+len(simulated))
	for k, v := range msg {
		result[k] = v
	}
	for k, v := range simulated {
		result[k] = v
	}

	p.logger.Debug("Backtest job result",
		slog.Any("job_id", jobID),
		slog.Any("result", map[string]any(result)),
	)

	return result
}

// Process validates msg and, if it is valid, runs the backtest job
func (p *Processor) Process(msg Message) (Result, error) {
	validated, err := p.ValidateInputMessage(msg)
	if err != nil {
		return nil, err
	}
	return p.RunBacktestJob(validated), nil
}

func lookup(msg ValidatedMessage, key string, fallback any) any {
	if v, ok := msg[key]; ok {
		return v
	}
	return fallback
}
