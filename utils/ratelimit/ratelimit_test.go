package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Gopher0727/InterviewRoom/config"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func fixedLimiter(client *redis.Client, failOpen bool) *RedisLimiter {
	l := NewRedisLimiter(client, zap.NewNop(), failOpen)
	at := time.Date(2024, 6, 1, 9, 0, 5, 0, time.UTC)
	l.now = func() time.Time { return at }
	return l
}

func TestRedisLimiter_Allow(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := fixedLimiter(client, false)
	ctx := context.Background()

	for i := range 5 {
		allowed, err := limiter.Allow(ctx, "ip:1.2.3.4", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}
	allowed, err := limiter.Allow(ctx, "ip:1.2.3.4", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = limiter.Allow(ctx, "ip:5.6.7.8", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "keys are independent")
}

func TestRedisLimiter_AllowN(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := fixedLimiter(client, false)
	ctx := context.Background()

	allowed, err := limiter.AllowN(ctx, "k", 3, 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	allowed, err = limiter.AllowN(ctx, "k", 3, 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRedisLimiter_NewWindow(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := fixedLimiter(client, false)
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)
	allowed, err = limiter.Allow(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)

	next := limiter.now().Add(time.Minute)
	limiter.now = func() time.Time { return next }
	allowed, err = limiter.Allow(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisLimiter_RemainingAndReset(t *testing.T) {
	client, mr := setupTestRedis(t)
	limiter := fixedLimiter(client, false)
	ctx := context.Background()

	remaining, err := limiter.Remaining(ctx, "k", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)

	for range 4 {
		_, err := limiter.Allow(ctx, "k", 10, time.Minute)
		require.NoError(t, err)
	}
	remaining, err = limiter.Remaining(ctx, "k", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 6, remaining)

	key := limiter.bucketKey("k", limiter.now(), time.Minute)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 61*time.Second, mr.TTL(key))

	require.NoError(t, limiter.Reset(ctx, "k", time.Minute))
	remaining, err = limiter.Remaining(ctx, "k", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
}

func TestRedisLimiter_RedisDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()
	ctx := context.Background()

	allowed, err := fixedLimiter(client, true).Allow(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "fail-open lets the request through")

	allowed, err = fixedLimiter(client, false).Allow(ctx, "k", 1, time.Minute)
	assert.Error(t, err)
	assert.False(t, allowed)
}

func TestRedisLimiter_NilClient(t *testing.T) {
	limiter := NewRedisLimiter(nil, nil, false)
	ctx := context.Background()

	for range 3 {
		allowed, err := limiter.Allow(ctx, "k", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	remaining, err := limiter.Remaining(ctx, "k", 7, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 7, remaining)
	assert.NoError(t, limiter.Reset(ctx, "k", time.Minute))
}

func TestRedisLimiter_Concurrent(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := fixedLimiter(client, false)
	ctx := context.Background()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := limiter.Allow(ctx, "shared", 20, time.Minute)
			if err == nil && ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(20), allowed.Load())
}

func TestRuleFor(t *testing.T) {
	cfg := &config.RateLimitConfig{
		VerifyPerMinute: 30,
		JoinPerMinute:   10,
		StatusPerMinute: 120,
		InvitePerMinute: 20,
		APIPerMinute:    300,
	}
	tests := []struct {
		endpoint Endpoint
		want     int
	}{
		{EndpointVerify, 30},
		{EndpointJoin, 10},
		{EndpointStatus, 120},
		{EndpointInvite, 20},
		{EndpointAPI, 300},
		{"other", 100},
	}
	for _, tt := range tests {
		t.Run(string(tt.endpoint), func(t *testing.T) {
			rule := RuleFor(tt.endpoint, cfg)
			assert.Equal(t, tt.want, rule.Limit)
			assert.Equal(t, time.Minute, rule.Window)
		})
	}
}
