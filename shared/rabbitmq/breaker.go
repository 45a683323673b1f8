package rabbitmq

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// JobPublisher publishes a job message to the work queue
type JobPublisher interface {
	PublishJob(ctx context.Context, body []byte) error
}

// BreakerPublisher guards a JobPublisher with a circuit breaker so callers
// fail fast while the broker is unreachable
type BreakerPublisher struct {
	next JobPublisher
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerPublisher wraps next. The breaker opens once at least 3 requests
// in the counting interval have a failure ratio of 60% or more, and lets a
// trial publish through after timeout.
func NewBreakerPublisher(next JobPublisher, name string, timeout time.Duration, logger *slog.Logger) *BreakerPublisher {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    5 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Publisher circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &BreakerPublisher{next: next, cb: cb}
}

// PublishJob publishes through the breaker. While open it returns
// gobreaker.ErrOpenState without calling the broker.
func (p *BreakerPublisher) PublishJob(ctx context.Context, body []byte) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, p.next.PublishJob(ctx, body)
	})
	return err
}

// State reports the breaker state
func (p *BreakerPublisher) State() gobreaker.State {
	return p.cb.State()
}
