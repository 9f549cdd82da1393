package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_RoundTripAndExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.PutResult(ctx, "fp-1", []byte("hit"), 20*time.Millisecond))
	val, hit := c.GetResult(ctx, "fp-1")
	require.True(t, hit)
	assert.Equal(t, "hit", string(val))

	time.Sleep(30 * time.Millisecond)
	_, hit = c.GetResult(ctx, "fp-1")
	assert.False(t, hit)
}

func TestMemoryCache_InvalidatePattern(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.PutResult(ctx, "fp-a", []byte("a"), time.Hour))
	require.NoError(t, c.PutEmbedding(ctx, "hash-b", []byte("b"), time.Hour))

	require.NoError(t, c.Invalidate(ctx, "res:*"))

	_, hitA := c.GetResult(ctx, "fp-a")
	_, hitB := c.GetEmbedding(ctx, "hash-b")
	assert.False(t, hitA)
	assert.True(t, hitB)
}
