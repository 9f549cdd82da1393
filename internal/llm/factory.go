package llm

import (
	"fmt"
	"sync"
)

// ProviderFactory constructs a Provider from a Config. Each vendor package
// registers exactly one factory for the ProviderKind it implements, at
// package init() time, so the registry never has to type-switch on kind.
type ProviderFactory func(cfg Config) (Provider, error)

var (
	factoryMu sync.RWMutex
	factories = map[ProviderKind]ProviderFactory{}
)

// RegisterFactory adds a factory for the given kind. Called from each
// vendor sub-package's init(). Re-registering the same kind is a
// programming error and panics, matching the teacher's fail-fast posture
// for startup wiring mistakes.
func RegisterFactory(kind ProviderKind, f ProviderFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("llm: factory already registered for kind %q", kind))
	}
	factories[kind] = f
}

// CreateProvider resolves the factory for cfg.ProviderKind and constructs a
// Provider instance from it.
func CreateProvider(cfg Config) (Provider, error) {
	factoryMu.RLock()
	f, ok := factories[cfg.ProviderKind]
	factoryMu.RUnlock()
	if !ok {
		return nil, &FactoryError{Kind: cfg.ProviderKind, Message: "no factory registered for provider kind"}
	}
	return f(cfg)
}

// FactoryError reports a construction-time failure distinct from a runtime
// Reply failure — these abort startup rather than degrading one call.
type FactoryError struct {
	Kind    ProviderKind
	Message string
}

func (e *FactoryError) Error() string {
	return fmt.Sprintf("llm: factory error for %q: %s", e.Kind, e.Message)
}
