package domain

import "github.com/finsite/stock-backtest-engine/internal/processor"

// JobMessage represents a backtest job message from RabbitMQ
type JobMessage struct {
	JobID       string
	Body        processor.Message
	DeliveryTag uint64
	Redelivered bool
}
