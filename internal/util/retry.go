package util

import (
	"context"
	"fmt"
	"time"
)

// Retry runs fn up to maxAttempts times with exponential backoff starting
// at baseDelay. It stops early when the context is cancelled. Only use it
// for idempotent calls.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == maxAttempts-1 {
			break
		}

		delay := baseDelay << attempt
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("after %d attempts: %w", maxAttempts, err)
}
