package llm

import "context"

// Provider is the single polymorphic operation every vendor adapter
// implements. The consensus engine never branches on ProviderKind after
// dispatch; it only ever calls Invoke.
type Provider interface {
	// Kind reports the ProviderKind this instance was constructed for.
	Kind() ProviderKind

	// Invoke turns a canonical Call into a Reply. It returns within
	// call.Deadline, never panics, and on failure sets Reply.Success=false
	// with a populated ErrorKind rather than returning a Go error for
	// ordinary provider failures. A non-nil error return is reserved for
	// programmer errors (nil call, missing configuration).
	Invoke(ctx context.Context, call Call) (Reply, error)

	// HealthCheck performs a lightweight liveness probe against the
	// provider's endpoint.
	HealthCheck(ctx context.Context) HealthStatus
}

// HealthStatus mirrors the coarse states used elsewhere in the pack for
// provider liveness reporting on GET /models.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// Config is the per-adapter construction input, resolved from a
// ModelDescriptor by the factory.
type Config struct {
	ModelID     string
	ProviderKind ProviderKind
	ModelName   string
	EndpointURL string
	Credential  string
	// SecretKey is only populated for two-legged auth flows (baidu-ernie).
	SecretKey   string
	MaxTokens   int
	Temperature float64
	Timeout     int // seconds
}
