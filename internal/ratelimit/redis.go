package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter backs multi-instance deployments with a shared sliding
// window, grounded directly on agent/redis_rate_limit.go's
// checkRateLimitRedis: a pipelined ZREMRANGEBYSCORE / ZCARD / ZADD / EXPIRE
// sequence. On any Redis error it logs and fails open: the request is
// decided by the fallback limiter when one is set, and allowed otherwise,
// so an outage degrades service rather than locking everyone out.
type RedisLimiter struct {
	client   *redis.Client
	fallback Limiter
}

// NewRedisLimiter wraps client, falling back to fallback whenever the Redis
// pipeline errors.
func NewRedisLimiter(client *redis.Client, fallback Limiter) *RedisLimiter {
	return &RedisLimiter{client: client, fallback: fallback}
}

func (r *RedisLimiter) Allow(ctx context.Context, token string, class RouteClass) (bool, time.Duration) {
	key := bucketKey(token, class)
	limit := rateFor(class)
	now := time.Now()

	pipe := r.client.Pipeline()
	minScore := now.Add(-time.Minute).Unix()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", minScore))
	card := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.Unix()), Member: fmt.Sprintf("%d", now.UnixNano())})
	pipe.Expire(ctx, key, 2*time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("ratelimit: redis pipeline failed for %s: %v (failing open)", key, err)
		if r.fallback != nil {
			return r.fallback.Allow(ctx, token, class)
		}
		return true, 0
	}

	count := card.Val()
	if count >= int64(limit) {
		return false, time.Minute
	}
	return true, 0
}
