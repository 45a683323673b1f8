package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/finsite/stock-backtest-engine/internal/processor"
	"github.com/redis/go-redis/v9"
)

// ResultCache caches backtest results in Redis keyed by job ID
type ResultCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewResultCache creates a new ResultCache. A zero ttl keeps entries forever.
func NewResultCache(rdb *redis.Client, prefix string, ttl time.Duration) *ResultCache {
	return &ResultCache{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Key returns the Redis key for a job's result
func (c *ResultCache) Key(jobID string) string {
	if c.prefix == "" {
		return fmt.Sprintf("result:%s", jobID)
	}
	return fmt.Sprintf("%s:result:%s", c.prefix, jobID)
}

// Get returns the cached result for jobID. A cache miss returns nil, nil.
func (c *ResultCache) Get(ctx context.Context, jobID string) (processor.Result, error) {
	raw, err := c.rdb.Get(ctx, c.Key(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached result: %w", err)
	}

	var result processor.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached result: %w", err)
	}
	return result, nil
}

// Set stores result under its job ID
func (c *ResultCache) Set(ctx context.Context, result processor.Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := c.rdb.Set(ctx, c.Key(result.JobID()), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}

// Delete removes a job's cached result
func (c *ResultCache) Delete(ctx context.Context, jobID string) error {
	if err := c.rdb.Del(ctx, c.Key(jobID)).Err(); err != nil {
		return fmt.Errorf("failed to delete cached result: %w", err)
	}
	return nil
}
