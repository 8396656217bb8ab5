package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "checkout:ratelimit:"

// FixedWindowLimiter is a Redis implementation of the RateLimiterRepository port.
type FixedWindowLimiter struct {
	rdb *redis.Client
}

func NewFixedWindowLimiter(rdb *redis.Client) *FixedWindowLimiter {
	return &FixedWindowLimiter{rdb: rdb}
}

// IsAllowed implements the rate limiting logic using a fixed-window algorithm in Redis.
func (a *FixedWindowLimiter) IsAllowed(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	key = keyPrefix + "fixed:" + key

	// Atomically increment the counter for the given key.
	count, err := a.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis INCR failed: %w", err)
	}

	// If this is the first request in the window, set the expiration time.
	if count == 1 {
		if err := a.rdb.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("redis EXPIRE failed: %w", err)
		}
	}

	return count <= int64(limit), nil
}

// SlidingWindowLimiter counts requests in a sorted set scored by arrival time.
type SlidingWindowLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

func NewSlidingWindowLimiter(rdb *redis.Client) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{rdb: rdb, now: time.Now}
}

func (a *SlidingWindowLimiter) IsAllowed(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	key = keyPrefix + "sliding:" + key
	now := a.now().UnixNano()
	windowStart := now - window.Nanoseconds()

	var card *redis.IntCmd
	_, err := a.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
		// Members must be unique even for requests in the same nanosecond.
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: uuid.NewString()})
		card = pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis sliding window failed: %w", err)
	}

	return card.Val() <= int64(limit), nil
}
