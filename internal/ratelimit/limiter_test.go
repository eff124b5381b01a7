package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := NewRedisLimiter(rdb, 5*time.Second)
	ctx := context.Background()

	ok, _ := l.Allow(ctx, 1)
	require.True(t, ok)

	ok, wait := l.Allow(ctx, 1)
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, 5*time.Second)

	other, _ := l.Allow(ctx, 2)
	assert.True(t, other, "cooldown is per user")

	mr.FastForward(6 * time.Second)
	ok, _ = l.Allow(ctx, 1)
	assert.True(t, ok)
	assert.True(t, mr.Exists("ratelimit:1"))
}

func TestRedisLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	l := NewRedisLimiter(rdb, 5*time.Second)

	mr.Close()
	ok, wait := l.Allow(context.Background(), 1)
	assert.True(t, ok)
	assert.Zero(t, wait)
}

func TestMemoryLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(5 * time.Second)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := l.Allow(ctx, 1)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, wait := l.Allow(ctx, 1)
	assert.False(t, ok)
	assert.InDelta(t, float64(3*time.Second), float64(wait), float64(10*time.Millisecond))

	ok, _ = l.Allow(ctx, 2)
	assert.True(t, ok)

	now = now.Add(3100 * time.Millisecond)
	ok, _ = l.Allow(ctx, 1)
	assert.True(t, ok)
}

func TestMemoryLimiterRejectionDoesNotExtendCooldown(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(5 * time.Second)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := l.Allow(ctx, 1)
	require.True(t, ok)
	for i := 0; i < 4; i++ {
		now = now.Add(time.Second)
		ok, _ = l.Allow(ctx, 1)
		assert.False(t, ok)
	}
	now = now.Add(1100 * time.Millisecond)
	ok, _ = l.Allow(ctx, 1)
	assert.True(t, ok)
}

func TestMemoryLimiterCleanup(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(time.Second)
	l.now = func() time.Time { return now }

	l.Allow(context.Background(), 1)
	now = now.Add(30 * time.Minute)
	l.Allow(context.Background(), 2)
	now = now.Add(40 * time.Minute)

	assert.Equal(t, 1, l.Cleanup(time.Hour))
	assert.Equal(t, 1, l.Size())
}
