package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter counts provider calls in redis so the budget holds across
// worker processes.
type RateLimiter struct {
	c *redis.Client
}

func NewRateLimiter(addr, password string, db int) *RateLimiter {
	return &RateLimiter{
		c: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Allow INCRs the counter and arms the TTL only on the first hit, so the
// window is fixed from the first call. Re-arming on every call would slide
// the window forward under constant load and the counter would never reset.
// Returns (allowed, currentCount).
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	n, err := rl.c.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit incr")
	}
	if n == 1 {
		if err := rl.c.Expire(ctx, key, window).Err(); err != nil {
			return false, 0, errors.Wrap(err, "redis ratelimit expire")
		}
	}
	return n <= limit, n, nil
}
