package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// healthCacheTTL bounds how often a Provider's HealthCheck is actually
// invoked; callers between refreshes see the cached result.
const healthCacheTTL = 30 * time.Second

type cachedHealth struct {
	status  HealthStatus
	checked time.Time
}

// Registry holds one lazily-constructed Provider per configured model id and
// answers lookups by model id. It is read-mostly: the descriptor table it is
// built from is replaced wholesale on a config reload (copy-on-write), never
// mutated field-by-field, so concurrent readers always see a consistent
// snapshot.
type Registry struct {
	mu        sync.RWMutex
	configs   map[string]Config // model_id -> config
	providers map[string]Provider
	health    map[string]cachedHealth
}

// RegistryOption customises Registry construction.
type RegistryOption func(*Registry)

// NewRegistry builds a Registry from a set of per-model configs. Providers
// are not constructed until first use (WithEagerInit overrides this).
func NewRegistry(configs map[string]Config, opts ...RegistryOption) *Registry {
	r := &Registry{
		configs:   configs,
		providers: make(map[string]Provider),
		health:    make(map[string]cachedHealth),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithEagerInit constructs every configured provider immediately instead of
// lazily on first Get. Construction failures are skipped without being
// reported; the registry still starts serving whichever providers built
// successfully, and Get retries construction for the rest on first use.
func WithEagerInit() RegistryOption {
	return func(r *Registry) {
		for id, cfg := range r.configs {
			if p, err := CreateProvider(cfg); err == nil {
				r.providers[id] = p
			}
		}
	}
}

// Get returns the Provider for modelID, constructing it on first use.
func (r *Registry) Get(modelID string) (Provider, error) {
	r.mu.RLock()
	if p, ok := r.providers[modelID]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	cfg, ok := r.configs[modelID]
	r.mu.RUnlock()
	if !ok {
		return nil, &RegistryError{ModelID: modelID, Message: "unknown model id"}
	}

	p, err := CreateProvider(cfg)
	if err != nil {
		return nil, &RegistryError{ModelID: modelID, Message: err.Error()}
	}

	r.mu.Lock()
	r.providers[modelID] = p
	r.mu.Unlock()
	return p, nil
}

// Health returns the cached (or freshly probed) health status for modelID.
func (r *Registry) Health(ctx context.Context, modelID string) HealthStatus {
	r.mu.RLock()
	if h, ok := r.health[modelID]; ok && time.Since(h.checked) < healthCacheTTL {
		r.mu.RUnlock()
		return h.status
	}
	r.mu.RUnlock()

	p, err := r.Get(modelID)
	if err != nil {
		return HealthUnknown
	}
	status := p.HealthCheck(ctx)

	r.mu.Lock()
	r.health[modelID] = cachedHealth{status: status, checked: time.Now()}
	r.mu.Unlock()
	return status
}

// ModelIDs returns the configured model ids, for /models listing.
func (r *Registry) ModelIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	return ids
}

// Replace swaps the entire config set atomically (copy-on-write), used by
// config-reload. Existing constructed providers for ids present in both the
// old and new set are retained; providers for removed ids are dropped.
func (r *Registry) Replace(configs map[string]Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	newProviders := make(map[string]Provider, len(configs))
	for id := range configs {
		if p, ok := r.providers[id]; ok {
			newProviders[id] = p
		}
	}
	r.configs = configs
	r.providers = newProviders
	r.health = make(map[string]cachedHealth)
}

// RegistryError reports a lookup or construction failure for one model id.
type RegistryError struct {
	ModelID string
	Message string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("llm registry: model %q: %s", e.ModelID, e.Message)
}
