package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/finsite/stock-backtest-engine/internal/worker/domain"
	"github.com/finsite/stock-backtest-engine/shared/rabbitmq"
)

// processJob validates and runs a single backtest job, then persists,
// caches and publishes its result
func (w *Worker) processJob(ctx context.Context, msg *domain.JobMessage) error {
	// Step 1: Validate the job message
	validated, err := w.processor.ValidateInputMessage(msg.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	// Step 2: Run the backtest
	result := w.processor.RunBacktestJob(validated)

	// A job that started runs to completion even if shutdown cancels ctx;
	// the job timeout still bounds it
	jobCtx := context.WithoutCancel(ctx)
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, w.jobTimeout)
		defer cancel()
	}

	// Step 3: Persist the result
	if err := w.store.SaveResult(jobCtx, result); err != nil {
		return w.failure(ctx, msg, fmt.Errorf("failed to save result: %w", err))
	}

	// Step 4: Cache the result; the database stays the source of truth
	if w.cache != nil {
		if err := w.cache.Set(jobCtx, result); err != nil {
			w.logger.Warn("Failed to cache result",
				slog.String("job_id", result.JobID()),
				slog.String("error", err.Error()),
			)
		}
	}

	// Step 5: Publish the result for downstream consumers
	if w.resultRoutingKey != "" {
		body, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("%w: failed to marshal result: %v", domain.ErrInvalidPayload, err)
		}
		if err := w.broker.Publish(jobCtx, w.resultRoutingKey, body, rabbitmq.ContentTypeJSON); err != nil {
			return w.failure(ctx, msg, fmt.Errorf("failed to publish result: %w", err))
		}
	}

	return nil
}

// failure classifies a transient failure: retry once, then give up. A
// failure caused by shutdown is always retried.
func (w *Worker) failure(ctx context.Context, msg *domain.JobMessage, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return domain.NewRetryableError(err)
	}
	if msg.Redelivered {
		w.logger.Warn("Redelivered job failed again",
			slog.String("job_id", msg.JobID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %v", domain.ErrMaxRetriesExceeded, err)
	}
	return domain.NewRetryableError(err)
}
