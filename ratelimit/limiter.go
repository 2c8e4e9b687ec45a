package ratelimit

import (
	"context"
	"time"
)

// Result describes the state of one key after a check
type Result struct {
	Allowed           bool      `json:"allowed"`
	RemainingAttempts int       `json:"remaining_attempts"`
	ResetAt           time.Time `json:"reset_at"`
	RetryAfterSeconds int       `json:"retry_after_seconds"`
}

// Limiter is a fixed-window attempt counter keyed by caller identity
type Limiter interface {
	// Check counts one attempt for key and reports whether it is allowed
	Check(ctx context.Context, key string, maxAttempts int, window time.Duration) (Result, error)
	// Reset forgets everything recorded for key
	Reset(ctx context.Context, key string) error
	// Status reports the state of key without counting an attempt
	Status(ctx context.Context, key string, maxAttempts int) (Result, error)
}

// retryAfter returns the whole seconds until resetAt, rounded up
func retryAfter(resetAt, now time.Time) int {
	d := resetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// evaluate builds the result for a window that has seen attempts so far
func evaluate(attempts, maxAttempts int, resetAt, now time.Time) Result {
	result := Result{
		Allowed:           attempts <= maxAttempts,
		RemainingAttempts: max(maxAttempts-attempts, 0),
		ResetAt:           resetAt,
	}
	if !result.Allowed {
		result.RetryAfterSeconds = retryAfter(resetAt, now)
	}
	return result
}
