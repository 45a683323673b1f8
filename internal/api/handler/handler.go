package handler

import (
	"context"
	"log/slog"

	"github.com/finsite/stock-backtest-engine/internal/processor"
	"github.com/finsite/stock-backtest-engine/internal/storage"
)

// ResultStore is the persistent result repository
type ResultStore interface {
	SaveResult(ctx context.Context, result processor.Result) error
	GetResult(ctx context.Context, jobID string) (*storage.BacktestResult, error)
	ListResults(ctx context.Context, filter storage.ResultFilter) ([]storage.BacktestResult, error)
	DeleteResult(ctx context.Context, jobID string) error
}

// ResultCache is the read-through result cache
type ResultCache interface {
	Get(ctx context.Context, jobID string) (processor.Result, error)
	Set(ctx context.Context, result processor.Result) error
	Delete(ctx context.Context, jobID string) error
}

// JobPublisher puts a job message on the work queue
type JobPublisher interface {
	PublishJob(ctx context.Context, body []byte) error
}

// HealthChecker reports whether a backend is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	ServiceName  string
	Processor    *processor.Processor
	Store        ResultStore
	Cache        ResultCache // optional
	Publisher    JobPublisher
	HealthChecks map[string]HealthChecker
}

// BacktestHandler handles backtest-related HTTP requests
type BacktestHandler struct {
	logger    *slog.Logger
	processor *processor.Processor
	store     ResultStore
	cache     ResultCache
	publisher JobPublisher
}

// NewBacktestHandler creates a new BacktestHandler instance
func NewBacktestHandler(deps *Dependencies) *BacktestHandler {
	return &BacktestHandler{
		logger:    deps.Logger,
		processor: deps.Processor,
		store:     deps.Store,
		cache:     deps.Cache,
		publisher: deps.Publisher,
	}
}
