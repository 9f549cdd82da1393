package cache

import (
	"context"
	"time"
)

// NullCache always misses on reads and succeeds silently on writes. It is
// the degraded-mode implementation §4.3 requires when the cache backend is
// unreachable, and the implementation used when caching is disabled
// outright.
type NullCache struct{}

func (NullCache) GetResult(ctx context.Context, fingerprint string) ([]byte, bool) { return nil, false }
func (NullCache) PutResult(ctx context.Context, fingerprint string, value []byte, ttl time.Duration) error {
	return nil
}
func (NullCache) GetEmbedding(ctx context.Context, textHash string) ([]byte, bool) { return nil, false }
func (NullCache) PutEmbedding(ctx context.Context, textHash string, value []byte, ttl time.Duration) error {
	return nil
}
func (NullCache) Invalidate(ctx context.Context, pattern string) error { return nil }
