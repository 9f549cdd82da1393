package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGate_Authorize_MissingHeader(t *testing.T) {
	g := NewGate([]string{"secret-token"}, NewMemoryLimiter())
	res := g.Authorize(context.Background(), "", RouteConsensus)
	assert.False(t, res.Allowed)
	assert.Equal(t, "unauthorized", res.ErrorKind)
}

func TestGate_Authorize_UnknownToken(t *testing.T) {
	g := NewGate([]string{"secret-token"}, NewMemoryLimiter())
	res := g.Authorize(context.Background(), "wrong-token", RouteConsensus)
	assert.False(t, res.Allowed)
	assert.Equal(t, "forbidden", res.ErrorKind)
}

func TestGate_Authorize_WithinBudget(t *testing.T) {
	g := NewGate([]string{"secret-token"}, NewMemoryLimiter())
	res := g.Authorize(context.Background(), "secret-token", RouteBatch)
	assert.True(t, res.Allowed)
}

func TestMemoryLimiter_ExhaustsBudget(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()

	limit := rateFor(RouteBatch) // 12/min
	for i := 0; i < limit; i++ {
		allowed, _ := l.Allow(ctx, "tok", RouteBatch)
		assert.True(t, allowed, "request %d should be within budget", i)
	}

	allowed, retryAfter := l.Allow(ctx, "tok", RouteBatch)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter.Seconds(), 0.0)
}

func TestMemoryLimiter_IndependentPerClass(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()

	for i := 0; i < rateFor(RouteBatch); i++ {
		_, _ = l.Allow(ctx, "tok", RouteBatch)
	}
	allowed, _ := l.Allow(ctx, "tok", RouteConsensus)
	assert.True(t, allowed, "consensus budget must be independent of batch budget")
}
