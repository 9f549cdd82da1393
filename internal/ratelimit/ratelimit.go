// Package ratelimit implements C4: bearer-token authorisation and
// per-(token, route-class) request budgets, grounded on
// agent/redis_rate_limit.go's sliding-window design (in-memory default,
// Redis-backed variant for multi-instance deployments, fail-open on
// backend errors).
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// RouteClass is one of the three independent budgets §4.4 names.
type RouteClass string

const (
	RouteConsensus RouteClass = "consensus"
	RouteBatch     RouteClass = "batch"
	RouteReadOnly  RouteClass = "read-only"
)

// defaultRatesPerMinute gives each route class its default budget per
// §4.4: "defaults: 60/min, 12/min, 300/min."
var defaultRatesPerMinute = map[RouteClass]int{
	RouteConsensus: 60,
	RouteBatch:     12,
	RouteReadOnly:  300,
}

// Limiter enforces the sliding-window budget for a (token, route-class)
// pair. Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow reports whether a request on token for class is within budget.
	// When it returns false, retryAfter is the bucket's refill interval.
	Allow(ctx context.Context, token string, class RouteClass) (allowed bool, retryAfter time.Duration)
}

// Gate wraps a Limiter with the static bearer-token set from §4.4's
// BACKEND_API_KEYS configuration surface.
type Gate struct {
	tokens  map[string]struct{}
	limiter Limiter
}

// NewGate builds a Gate from the configured token set and a Limiter.
func NewGate(tokens []string, limiter Limiter) *Gate {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return &Gate{tokens: set, limiter: limiter}
}

// AuthResult is the outcome of Authorize.
type AuthResult struct {
	Allowed    bool
	ErrorKind  string // "unauthorized" | "forbidden" | "rate_limited" | ""
	RetryAfter time.Duration
}

// Authorize applies §4.4's three checks in order: header presence, token
// membership, then rate budget.
func (g *Gate) Authorize(ctx context.Context, bearerToken string, class RouteClass) AuthResult {
	if bearerToken == "" {
		return AuthResult{ErrorKind: "unauthorized"}
	}
	if _, ok := g.tokens[bearerToken]; !ok {
		return AuthResult{ErrorKind: "forbidden"}
	}
	allowed, retryAfter := g.limiter.Allow(ctx, bearerToken, class)
	if !allowed {
		return AuthResult{ErrorKind: "rate_limited", RetryAfter: retryAfter}
	}
	return AuthResult{Allowed: true}
}

func rateFor(class RouteClass) int {
	if r, ok := defaultRatesPerMinute[class]; ok {
		return r
	}
	return defaultRatesPerMinute[RouteConsensus]
}

func bucketKey(token string, class RouteClass) string {
	return fmt.Sprintf("ratelimit:%s:%s", class, token)
}
