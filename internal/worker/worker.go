package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/finsite/stock-backtest-engine/internal/processor"
	"github.com/finsite/stock-backtest-engine/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker is the message broker jobs are consumed from and results published to
type Broker interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	Ack(deliveryTag uint64) error
	Nack(deliveryTag uint64, requeue bool) error
	Publish(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// ResultStore persists backtest results
type ResultStore interface {
	SaveResult(ctx context.Context, result processor.Result) error
}

// ResultCache caches backtest results for fast reads
type ResultCache interface {
	Set(ctx context.Context, result processor.Result) error
}

// Config holds worker configuration
type Config struct {
	Logger           *slog.Logger
	Processor        *processor.Processor
	Broker           Broker
	Store            ResultStore
	Cache            ResultCache // optional
	WorkerID         string
	Concurrency      int
	JobTimeout       time.Duration
	ResultRoutingKey string // results are not published when empty
}

// Worker represents the background backtest job worker
type Worker struct {
	logger           *slog.Logger
	processor        *processor.Processor
	broker           Broker
	store            ResultStore
	cache            ResultCache
	workerID         string
	concurrency      int
	jobTimeout       time.Duration
	resultRoutingKey string
	jobsChan         chan *domain.JobMessage
	wg               sync.WaitGroup
	stopChan         chan struct{}
	stopOnce         sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Worker{
		logger:           cfg.Logger,
		processor:        cfg.Processor,
		broker:           cfg.Broker,
		store:            cfg.Store,
		cache:            cfg.Cache,
		workerID:         cfg.WorkerID,
		concurrency:      concurrency,
		jobTimeout:       cfg.JobTimeout,
		resultRoutingKey: cfg.ResultRoutingKey,
		jobsChan:         make(chan *domain.JobMessage, concurrency),
		stopChan:         make(chan struct{}),
	}
}

// Start subscribes to the job queue, spawns the worker pool and blocks
// until ctx is canceled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.broker.Consume(w.workerID)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	w.spawnWorkerPool(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.startMessageDispatcher(ctx, deliveries)
	}()

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	return nil
}

// Stop gracefully stops the worker and waits for in-flight jobs
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
		w.wg.Wait()
		w.requeuePending()
		w.logger.Info("Worker stopped")
	})
}
