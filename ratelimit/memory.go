package ratelimit

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type record struct {
	attempts int
	resetAt  time.Time
}

// MemoryLimiter keeps counters in process memory. Counters are not shared
// between instances.
type MemoryLimiter struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
}

// NewMemoryLimiter creates an empty in-process limiter
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		records: make(map[string]*record),
		now:     time.Now,
	}
}

// Check counts one attempt for key
func (l *MemoryLimiter) Check(ctx context.Context, key string, maxAttempts int, window time.Duration) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[key]
	if !ok || now.After(rec.resetAt) {
		rec = &record{attempts: 1, resetAt: now.Add(window)}
		l.records[key] = rec
		return evaluate(rec.attempts, maxAttempts, rec.resetAt, now), nil
	}

	rec.attempts++
	return evaluate(rec.attempts, maxAttempts, rec.resetAt, now), nil
}

// Reset clears the record for key
func (l *MemoryLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.records, key)
	return nil
}

// Status reports the current window of key. A missing or expired record
// reports a fresh window.
func (l *MemoryLimiter) Status(ctx context.Context, key string, maxAttempts int) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[key]
	if !ok || now.After(rec.resetAt) {
		return Result{Allowed: true, RemainingAttempts: maxAttempts}, nil
	}
	result := Result{
		Allowed:           rec.attempts < maxAttempts,
		RemainingAttempts: max(maxAttempts-rec.attempts, 0),
		ResetAt:           rec.resetAt,
	}
	if !result.Allowed {
		result.RetryAfterSeconds = retryAfter(rec.resetAt, now)
	}
	return result, nil
}

// Sweep drops records whose window has passed and returns how many were removed
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, rec := range l.records {
		if now.After(rec.resetAt) {
			delete(l.records, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// StartCleanup sweeps expired records every interval until ctx is done
func (l *MemoryLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Debug("Rate limiter cleanup stopped")
				return
			case <-ticker.C:
				if removed := l.Sweep(); removed > 0 {
					log.WithFields(log.Fields{
						"removed":   removed,
						"remaining": l.Len(),
					}).Debug("Swept expired rate limit records")
				}
			}
		}
	}()
}
