package embedding

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/n0rvyn/cross-mind-consensus/internal/cache"
)

// embeddingCacheTTL is §4.2's 24h TTL for cached embeddings.
const embeddingCacheTTL = 24 * time.Hour

// CachedEmbedder wraps an Embedder with a C3-backed cache keyed by
// "emb:<sha256(text)>", so repeated text across requests (e.g. the same
// model reply recurring for a repeated question) skips the underlying Embed
// call.
type CachedEmbedder struct {
	inner Embedder
	cache cache.Cache
}

// NewCachedEmbedder composes inner with cache.
func NewCachedEmbedder(inner Embedder, c cache.Cache) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: c}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	hash := cache.TextHash(text)
	if raw, hit := c.cache.GetEmbedding(ctx, hash); hit {
		return decodeVector(raw), nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	_ = c.cache.PutEmbedding(ctx, hash, encodeVector(vec), embeddingCacheTTL)
	return vec, nil
}

func encodeVector(v Vector) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.BigEndian.PutUint64(buf[i*8:i*8+8], math.Float64bits(f))
	}
	return buf
}

func decodeVector(buf []byte) Vector {
	n := len(buf) / 8
	v := make(Vector, n)
	for i := 0; i < n; i++ {
		bits := binary.BigEndian.Uint64(buf[i*8 : i*8+8])
		v[i] = math.Float64frombits(bits)
	}
	return v
}
