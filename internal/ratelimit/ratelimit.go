// Package ratelimit throttles stream relay opens per client using a
// Redis-backed GCRA limiter.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// Limiter reports whether key may perform one more action.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

// NewRedisLimiter allows perMinute actions per key with a burst of the same size.
func NewRedisLimiter(rdb *redis.Client, prefix string, perMinute int) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(rdb),
		limit:   redis_rate.Limit{Rate: perMinute, Burst: perMinute, Period: time.Minute},
		prefix:  prefix,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := l.limiter.Allow(ctx, l.prefix+key, l.limit)
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return res.Allowed > 0, nil
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}
