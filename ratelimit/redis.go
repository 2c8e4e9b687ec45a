package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "familypoints:ratelimit:"

// incrScript increments the counter and starts the window on the first attempt.
// It returns the attempt count and the milliseconds left in the window.
var incrScript = redis.NewScript(`
local attempts = redis.call('INCR', KEYS[1])
if attempts == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {attempts, ttl}
`)

// RedisLimiter shares counters between instances through Redis keys that
// expire with their window
type RedisLimiter struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

// NewRedisLimiter connects to addr and verifies the connection
func NewRedisLimiter(ctx context.Context, addr string) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisLimiterWithClient(client, ""), nil
}

// NewRedisLimiterWithClient wraps an existing client
func NewRedisLimiterWithClient(client *redis.Client, keyPrefix string) *RedisLimiter {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

// Check counts one attempt for key
func (l *RedisLimiter) Check(ctx context.Context, key string, maxAttempts int, window time.Duration) (Result, error) {
	values, err := incrScript.Run(ctx, l.client, []string{l.keyPrefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("failed to count attempt: %w", err)
	}
	if len(values) != 2 {
		return Result{}, fmt.Errorf("unexpected rate limit script reply %v", values)
	}

	now := l.now()
	resetAt := now.Add(time.Duration(values[1]) * time.Millisecond)
	return evaluate(int(values[0]), maxAttempts, resetAt, now), nil
}

// Reset deletes the counter for key
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}

// Status reads the counter for key without incrementing it
func (l *RedisLimiter) Status(ctx context.Context, key string, maxAttempts int) (Result, error) {
	fullKey := l.keyPrefix + key

	var get *redis.StringCmd
	var pttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, fullKey)
		pttl = pipe.PTTL(ctx, fullKey)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Result{}, fmt.Errorf("failed to read rate limit: %w", err)
	}

	raw, err := get.Result()
	if errors.Is(err, redis.Nil) {
		return Result{Allowed: true, RemainingAttempts: maxAttempts}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to read rate limit: %w", err)
	}
	attempts, err := strconv.Atoi(raw)
	if err != nil {
		return Result{}, fmt.Errorf("invalid rate limit counter %q: %w", raw, err)
	}

	now := l.now()
	resetAt := now
	if ttl := pttl.Val(); ttl > 0 {
		resetAt = now.Add(ttl)
	}
	result := Result{
		Allowed:           attempts < maxAttempts,
		RemainingAttempts: max(maxAttempts-attempts, 0),
		ResetAt:           resetAt,
	}
	if !result.Allowed {
		result.RetryAfterSeconds = retryAfter(resetAt, now)
	}
	return result, nil
}

// Close closes the Redis client
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
