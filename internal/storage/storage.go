package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/finsite/stock-backtest-engine/internal/processor"
	"github.com/jmoiron/sqlx"
)

// ErrResultNotFound is returned when no result is stored for a job ID
var ErrResultNotFound = errors.New("backtest result not found")

// Schema creates the backtest_results table and its listing index
const Schema = `
CREATE TABLE IF NOT EXISTS backtest_results (
	job_id      TEXT PRIMARY KEY,
	strategy    TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	status      TEXT NOT NULL,
	metrics     JSONB,
	result      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_backtest_results_created_at
	ON backtest_results (created_at DESC, job_id DESC);
`

// Storage handles all database operations for backtest results
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the tables used by Storage if they do not exist
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// SaveResult inserts a result or replaces the stored result for the same job ID
func (s *Storage) SaveResult(ctx context.Context, result processor.Result) error {
	query := `
		INSERT INTO backtest_results (
			job_id, strategy, symbol, status, metrics, result, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW(), NOW()
		)
		ON CONFLICT (job_id) DO UPDATE
		SET strategy = EXCLUDED.strategy,
		    symbol = EXCLUDED.symbol,
		    status = EXCLUDED.status,
		    metrics = EXCLUDED.metrics,
		    result = EXCLUDED.result,
		    updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		result.JobID(),
		result.Strategy(),
		result.Symbol(),
		result.Status(),
		JSONMap(result.Metrics()),
		JSONMap(result),
	)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	s.logger.Info("Backtest result saved",
		slog.String("job_id", result.JobID()),
		slog.String("status", result.Status()),
	)

	return nil
}

// GetResult retrieves the stored result for a job ID
func (s *Storage) GetResult(ctx context.Context, jobID string) (*BacktestResult, error) {
	query := `
		SELECT job_id, strategy, symbol, status, metrics, result, created_at, updated_at
		FROM backtest_results
		WHERE job_id = $1
	`

	var row BacktestResult
	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	return &row, nil
}

// ListResults returns up to PageSize+1 results, newest first, so the caller
// can tell whether another page exists
func (s *Storage) ListResults(ctx context.Context, filter ResultFilter) ([]BacktestResult, error) {
	query, args := buildListQuery(filter)

	var rows []BacktestResult
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}

	return rows, nil
}

// DeleteResult removes the stored result for a job ID
func (s *Storage) DeleteResult(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backtest_results WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrResultNotFound
	}

	s.logger.Info("Backtest result deleted",
		slog.String("job_id", jobID),
	)

	return nil
}

func buildListQuery(filter ResultFilter) (string, []any) {
	query := `
        SELECT job_id, strategy, symbol, status, metrics, result, created_at, updated_at
        FROM backtest_results
        WHERE 1=1
    `
	args := []any{}
	argIdx := 1

	if filter.Strategy != "" {
		query += fmt.Sprintf(" AND strategy = $%d", argIdx)
		args = append(args, filter.Strategy)
		argIdx++
	}

	if filter.Symbol != "" {
		query += fmt.Sprintf(" AND symbol = $%d", argIdx)
		args = append(args, filter.Symbol)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	return query, args
}
