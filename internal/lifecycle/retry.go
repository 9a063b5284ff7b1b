package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig controls how often a failed Initialize is retried.
type RetryConfig struct {
	MaxRetries    int           // Additional attempts after the first failure (default: 0)
	RetryDelay    time.Duration // Initial backoff delay (default: 250ms)
	MaxRetryDelay time.Duration // Backoff cap (default: 2s)
}

// DefaultRetryConfig returns the retry configuration used when none is given:
// a single attempt, no retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    0,
		RetryDelay:    250 * time.Millisecond,
		MaxRetryDelay: 2 * time.Second,
	}
}

// AttemptFunc performs one attempt of a retried operation.
type AttemptFunc func(ctx context.Context) error

// RunWithRetry calls fn until it succeeds, the retry budget is exhausted or
// ctx is cancelled. It returns the number of attempts made.
//
// Backoff schedule with RetryDelay=250ms, MaxRetryDelay=2s:
//   - Retry 1: 250ms
//   - Retry 2: 500ms
//   - Retry 3: 1s
//   - Retry 4+: 2s (capped)
func RunWithRetry(ctx context.Context, fn AttemptFunc, cfg RetryConfig, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return attempt, err
		}

		attempt++
		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}

		if attempt > cfg.MaxRetries {
			if cfg.MaxRetries == 0 {
				return attempt, err
			}
			return attempt, fmt.Errorf("lifecycle: max retries exceeded (%d attempts): %w", attempt, err)
		}

		delay := calculateBackoff(attempt, cfg)
		logger.Warn("lifecycle: attempt failed, retrying",
			"attempt", attempt,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		}
	}
}

// calculateBackoff returns RetryDelay * 2^(attempt-1), capped at MaxRetryDelay.
func calculateBackoff(attempt int, cfg RetryConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return cfg.MaxRetryDelay
	}

	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if cfg.MaxRetryDelay > 0 && delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
