// Package retry implements the exponential-backoff loop shared by every
// outbound call in the pipeline.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config controls the backoff schedule.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultConfig matches the scraper courtesy policy: two retries with at
// least one second between attempts.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Do executes op with exponential backoff. Only errors for which
// isRetryable returns true are retried.
func Do(ctx context.Context, cfg Config, operationName string, isRetryable func(error) bool, op func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryable(err) || attempt == cfg.MaxRetries {
			return lastErr
		}

		// Power-of-two backoff capped at MaxDelay.
		delay := cfg.BaseDelay * time.Duration(1<<attempt)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("operation %s cancelled after %d attempts: %w", operationName, attempt+1, ctx.Err())
		}
	}

	return lastErr
}
