package redis

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	rateLimitKeyPrefix = "rate_limit:votes:"
	rateLimitTimeout   = 250 * time.Millisecond
)

// VoteRateLimiter is a token bucket per caller kept in Redis, so every
// instance draws from the same bucket. It implements echo's
// middleware.RateLimiterStore.
type VoteRateLimiter struct {
	rdb           *goredis.Client
	clock         clockwork.Clock
	ratePerSecond float64
	burst         int
	ttl           time.Duration
}

func NewVoteRateLimiter(rdb *goredis.Client, clock clockwork.Clock, ratePerSecond float64, burst int) *VoteRateLimiter {
	// A bucket idle long enough to refill completely carries no state.
	refill := time.Duration(math.Ceil(float64(burst)/ratePerSecond*1000)) * time.Millisecond
	return &VoteRateLimiter{
		rdb:           rdb,
		clock:         clock,
		ratePerSecond: ratePerSecond,
		burst:         burst,
		ttl:           refill + time.Second,
	}
}

// Allow takes a token for identifier. When Redis cannot answer the request is
// let through; votes are still bounded by the store.
func (v *VoteRateLimiter) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rateLimitTimeout)
	defer cancel()

	allowed, err := tokenBucketScript.Run(ctx, v.rdb,
		[]string{rateLimitKeyPrefix + identifier},
		v.clock.Now().UnixMilli(),
		v.ratePerSecond,
		v.burst,
		v.ttl.Milliseconds(),
	).Int()
	if err != nil {
		slog.Warn("Vote rate limit check failed, allowing request", "error", err)
		return true, nil
	}
	return allowed == 1, nil
}
