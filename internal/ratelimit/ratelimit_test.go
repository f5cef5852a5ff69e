package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/estate/internal/clock"
	"github.com/smallbiznis/estate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLockerExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	locker := NewLocker(newTestRedis(t))

	token, ok, err := locker.TryLock(ctx, "job:refresh", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "job:refresh", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "job:refresh", "someone-else"))
	_, ok, _ = locker.TryLock(ctx, "job:refresh", time.Minute)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "job:refresh", token))
	_, ok, err = locker.TryLock(ctx, "job:refresh", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLockerLeaseExpires(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	locker := NewLocalLocker(clk)

	_, ok, err := locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = locker.TryLock(ctx, "job", time.Minute)
	assert.False(t, ok)

	clk.Advance(2 * time.Minute)
	_, ok, _ = locker.TryLock(ctx, "job", time.Minute)
	assert.True(t, ok)
}

func TestNewJobLockerFallsBackWithoutRedis(t *testing.T) {
	_, isLocal := NewJobLocker(nil, nil).(*LocalLocker)
	assert.True(t, isLocal)
}

func TestPublicLimiterDeniesAfterBurst(t *testing.T) {
	cfg := config.DefaultPricingConfig()
	cfg.PublicRateLimit = config.PublicRateLimit{Rate: 0.001, Burst: 2}
	limiter := NewPublicLimiter(newTestRedis(t), config.NewStaticPricingConfigHolder(cfg))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	res, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestNilPublicLimiterAllows(t *testing.T) {
	var limiter *PublicLimiter
	res, err := limiter.Allow(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
