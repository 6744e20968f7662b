package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisLimiter is a sliding window limiter shared across instances. Each
// key is a sorted set of request timestamps.
type RedisLimiter struct {
	redis  *redis.Client
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a new Redis-backed limiter
func NewRedisLimiter(client *redis.Client, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		redis:  client,
		window: window,
		prefix: "ratelimit",
		now:    time.Now,
	}
}

// Window returns the limiter window
func (l *RedisLimiter) Window() time.Duration {
	return l.window
}

// Allow records the request and reports whether key is within limit.
// Rejected requests are removed again so they do not extend the penalty.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) (bool, int, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)
	now := l.now()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()
	windowStart := now.Add(-l.window).UnixNano()

	var card *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(windowStart, 10))
		pipe.ZAdd(ctx, redisKey, &redis.Z{Score: float64(now.UnixNano()), Member: member})
		card = pipe.ZCard(ctx, redisKey)
		pipe.Expire(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		return true, 0, fmt.Errorf("redis error: %w", err)
	}

	count := int(card.Val())
	if count > limit {
		// Best effort; a leftover member only shortens the next window.
		l.redis.ZRem(ctx, redisKey, member)
		return false, 0, nil
	}
	return true, limit - count, nil
}

// Reset clears the window for a key
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.redis.Del(ctx, fmt.Sprintf("%s:%s", l.prefix, key)).Err()
}

// HealthCheck verifies Redis connectivity for rate limiting
func (l *RedisLimiter) HealthCheck(ctx context.Context) error {
	return l.redis.Ping(ctx).Err()
}
