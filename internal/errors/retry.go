package errors

import (
	"context"
	"errors"
	"time"
)

const (
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// WithRetry runs fn until it succeeds, returns a non-retryable error, or
// the attempt budget is exhausted. Used for store connectivity at startup.
func WithRetry(ctx context.Context, fn func() error) error {
	if fn == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err = fn()
		if err == nil {
			return nil
		}

		if !IsRetryable(err) || attempt == maxRetries {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
}

// IsRetryable reports whether err is worth another attempt. Classified
// errors carry their own flag; unclassified failures are assumed to be
// transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Retryable
	}

	return true
}

// backoff doubles the delay per attempt up to the cap.
func backoff(attempt int) time.Duration {
	d := initialBackoff << attempt
	if d > maxBackoff {
		return maxBackoff
	}

	return d
}
