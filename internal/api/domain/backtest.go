package domain

import (
	"errors"
)

// StatusQueued is reported for a job accepted onto the queue
const StatusQueued = "queued"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	ErrInvalidCursor = errors.New("invalid cursor")
)
