package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisLimiter(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	t.Run("fixed window sequence", func(t *testing.T) {
		limiter := NewRedisLimiterWithClient(client, "test:sequence:")

		var allowed []bool
		var remaining []int
		for range 6 {
			result, err := limiter.Check(ctx, "10.0.0.1", 5, time.Minute)
			require.NoError(t, err)
			allowed = append(allowed, result.Allowed)
			remaining = append(remaining, result.RemainingAttempts)
		}
		assert.Equal(t, []bool{true, true, true, true, true, false}, allowed)
		assert.Equal(t, []int{4, 3, 2, 1, 0, 0}, remaining)

		result, err := limiter.Check(ctx, "10.0.0.1", 5, time.Minute)
		require.NoError(t, err)
		assert.Greater(t, result.RetryAfterSeconds, 0)
		assert.LessOrEqual(t, result.RetryAfterSeconds, 60)
	})

	t.Run("status does not count", func(t *testing.T) {
		limiter := NewRedisLimiterWithClient(client, "test:status:")

		status, err := limiter.Status(ctx, "k", 2)
		require.NoError(t, err)
		assert.True(t, status.Allowed)
		assert.Equal(t, 2, status.RemainingAttempts)

		_, err = limiter.Check(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
		for range 5 {
			status, err = limiter.Status(ctx, "k", 2)
			require.NoError(t, err)
		}
		assert.True(t, status.Allowed)
		assert.Equal(t, 1, status.RemainingAttempts)
	})

	t.Run("window expires", func(t *testing.T) {
		limiter := NewRedisLimiterWithClient(client, "test:expiry:")

		for range 2 {
			_, err := limiter.Check(ctx, "k", 1, 200*time.Millisecond)
			require.NoError(t, err)
		}
		assert.Eventually(t, func() bool {
			status, err := limiter.Status(ctx, "k", 1)
			return err == nil && status.Allowed
		}, 2*time.Second, 50*time.Millisecond)

		result, err := limiter.Check(ctx, "k", 1, 200*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})

	t.Run("reset", func(t *testing.T) {
		limiter := NewRedisLimiterWithClient(client, "test:reset:")

		for range 3 {
			_, err := limiter.Check(ctx, "k", 1, time.Minute)
			require.NoError(t, err)
		}
		require.NoError(t, limiter.Reset(ctx, "k"))

		result, err := limiter.Check(ctx, "k", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})
}
