// internal/breaker/registry.go
package breaker

import (
	"sync"

	"go.uber.org/zap"
)

// Registry holds one breaker per isolated dependency key
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
	logger   *zap.Logger
}

// NewRegistry creates a registry; cfg applies to breakers created lazily
func NewRegistry(cfg Config, logger *zap.Logger) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Get returns the breaker for a dependency key, creating it on first use
func (r *Registry) Get(dependency string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[dependency]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[dependency]; ok {
		return b
	}
	b, err := New(dependency, r.cfg, r.logger)
	if err != nil {
		// cfg was validated at registry construction; this cannot happen
		panic(err)
	}
	r.breakers[dependency] = b
	return b
}

// All returns every registered breaker
func (r *Registry) All() []*Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b)
	}
	return out
}

// Close disposes every breaker in the registry
func (r *Registry) Close() error {
	for _, b := range r.All() {
		_ = b.Close()
	}
	return nil
}
