package utils

import (
	"context"
	"time"
)

// BackoffDelay calculates exponential backoff for a retry attempt, capped at
// maxDelay.
func BackoffDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	delay := baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxDelay {
			return maxDelay
		}
	}
	return delay
}

// Retry runs fn up to attempts times, sleeping with exponential backoff
// between failures. It returns the last error once attempts are exhausted,
// or the context error if the caller goes away while waiting.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	const maxDelay = 30 * time.Second

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(BackoffDelay(attempt-1, baseDelay, maxDelay))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}
