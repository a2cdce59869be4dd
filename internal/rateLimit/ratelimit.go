// Package rateLimit implements fixed-window request limits on Redis counters.
package rateLimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/property-bookings/internal/observability"
)

// Rule allows Limit requests per Period for one key space.
type Rule struct {
	Limit  int
	Period time.Duration
}

type RateLimiter struct {
	client *redis.Client
	logger observability.Logger
}

func NewRateLimiter(client *redis.Client, logger observability.Logger) *RateLimiter {
	return &RateLimiter{client: client, logger: logger}
}

// Allow counts one request against key. Redis failures let the request through.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rule Rule) bool {
	fullKey := "rl:" + key

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, rule.Period)

	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.WithError(err).WithField("key", fullKey).Warn("rate limit check failed")
		return true
	}
	if incr.Val() > int64(rule.Limit) {
		observability.RateLimitExceeded.Inc()
		return false
	}
	return true
}
