package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/InterviewRoom/config"
)

// Limiter is a fixed-window counter shared by every API instance.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	AllowN(ctx context.Context, key string, n int, limit int, window time.Duration) (bool, error)
	Reset(ctx context.Context, key string, window time.Duration) error
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

// RedisLimiter keeps one counter per key and window in Redis. With a nil
// client every request passes.
type RedisLimiter struct {
	redisClient *redis.Client
	logger      *zap.Logger
	failOpen    bool
	now         func() time.Time
}

func NewRedisLimiter(redisClient *redis.Client, logger *zap.Logger, failOpen bool) *RedisLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLimiter{
		redisClient: redisClient,
		logger:      logger,
		failOpen:    failOpen,
		now:         time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return l.AllowN(ctx, key, 1, limit, window)
}

// AllowN consumes n tokens from the current window of key.
func (l *RedisLimiter) AllowN(ctx context.Context, key string, n int, limit int, window time.Duration) (bool, error) {
	if l.redisClient == nil || limit <= 0 {
		return true, nil
	}
	bucketKey := l.bucketKey(key, l.now(), window)

	pipe := l.redisClient.TxPipeline()
	incr := pipe.IncrBy(ctx, bucketKey, int64(n))
	pipe.Expire(ctx, bucketKey, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		if l.failOpen {
			l.logger.Warn("rate limit check failed, allowing request", zap.String("key", key), zap.Error(err))
			return true, nil
		}
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := incr.Val()
	if count > int64(limit) {
		l.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int("limit", limit))
		return false, nil
	}
	return true, nil
}

// Reset clears the current and previous window of key.
func (l *RedisLimiter) Reset(ctx context.Context, key string, window time.Duration) error {
	if l.redisClient == nil {
		return nil
	}
	now := l.now()
	keys := []string{l.bucketKey(key, now, window), l.bucketKey(key, now.Add(-window), window)}
	if err := l.redisClient.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit for key %s: %w", key, err)
	}
	return nil
}

// Remaining reports how many requests key may still make in this window.
func (l *RedisLimiter) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	if l.redisClient == nil {
		return limit, nil
	}
	count, err := l.redisClient.Get(ctx, l.bucketKey(key, l.now(), window)).Int64()
	if errors.Is(err, redis.Nil) {
		return limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get remaining tokens: %w", err)
	}
	return max(limit-int(count), 0), nil
}

func (l *RedisLimiter) bucketKey(key string, now time.Time, window time.Duration) string {
	secs := int64(window / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return fmt.Sprintf("ratelimit:%s:%d", key, now.Unix()/secs)
}

// Endpoint groups share one per-minute budget.
type Endpoint string

const (
	EndpointVerify Endpoint = "verify"
	EndpointJoin   Endpoint = "join"
	EndpointStatus Endpoint = "status"
	EndpointInvite Endpoint = "invite"
	EndpointAPI    Endpoint = "api"
)

type Rule struct {
	Limit  int
	Window time.Duration
}

// RuleFor returns the budget configured for endpoint.
func RuleFor(endpoint Endpoint, cfg *config.RateLimitConfig) Rule {
	limit := 100
	switch endpoint {
	case EndpointVerify:
		limit = cfg.VerifyPerMinute
	case EndpointJoin:
		limit = cfg.JoinPerMinute
	case EndpointStatus:
		limit = cfg.StatusPerMinute
	case EndpointInvite:
		limit = cfg.InvitePerMinute
	case EndpointAPI:
		limit = cfg.APIPerMinute
	}
	return Rule{Limit: limit, Window: time.Minute}
}
