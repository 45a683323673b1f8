package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryableError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewRetryableError(fmt.Errorf("failed to save result: %w", cause))

	assert.Equal(t, "retryable error: failed to save result: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)

	var retryable *RetryableError
	assert.True(t, errors.As(fmt.Errorf("job failed: %w", err), &retryable))
}
