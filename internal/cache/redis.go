package cache

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache backs C3 with a shared Redis connection, grounded on
// agent/redis_rate_limit.go's client construction and fail-open error
// handling: a Redis error degrades the call to a miss (read) or a silent
// no-op success (write) rather than propagating to the caller, per §4.3's
// "a backend outage degrades to a null implementation... the engine
// continues to serve requests."
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache parses redisURL (redis://host:port[/db]) and verifies
// connectivity with a short-lived ping.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	log.Printf("cache: connected to redis at %s", redisURL)
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) GetResult(ctx context.Context, fingerprint string) ([]byte, bool) {
	return c.get(ctx, ResultKey(fingerprint))
}

func (c *RedisCache) PutResult(ctx context.Context, fingerprint string, value []byte, ttl time.Duration) error {
	return c.set(ctx, ResultKey(fingerprint), value, ttl)
}

func (c *RedisCache) GetEmbedding(ctx context.Context, textHash string) ([]byte, bool) {
	return c.get(ctx, EmbeddingKey(textHash))
}

func (c *RedisCache) PutEmbedding(ctx context.Context, textHash string, value []byte, ttl time.Duration) error {
	return c.set(ctx, EmbeddingKey(textHash), value, ttl)
}

func (c *RedisCache) get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("cache: get %s failed: %v (treating as miss)", key, err)
		}
		return nil, false
	}
	return val, true
}

func (c *RedisCache) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Printf("cache: set %s failed: %v (degrading silently)", key, err)
		return nil
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, pattern string) error {
	keys, err := c.client.Keys(ctx, pattern).Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
