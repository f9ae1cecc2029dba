// Package ratelimit implements per-user request throttling over a Redis
// sliding window.
package ratelimit

import (
	"context"
	"time"
)

// Result captures one rate-limit evaluation.
type Result struct {
	// Allowed is false once the window holds more requests than the limit.
	Allowed bool
	// Remaining is how many more requests fit in the current window.
	Remaining int
	// ResetAt is when the oldest request in the window ages out.
	ResetAt time.Time
}

// Limiter evaluates whether another request under key fits the limit.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}
