package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter is a fixed-window counter: the first hit in a window sets the
// key's expiry.
type RateLimiter struct {
	client RedisClient
	prefix string
}

func NewRateLimiter(client RedisClient, prefix string) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.prefix != "" {
		key = r.prefix + ":" + key
	}
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = r.client.Expire(ctx, key, window)
		if err != nil {
			return false, err
		}
	}

	if count > int64(limit) {
		return false, nil
	}

	return true, nil
}

// SenderKey is the budget key for all chat commands of one sender.
func SenderKey(sender string) string {
	return fmt.Sprintf("rate_limit:%s", sender)
}
