package circuitbreaker

import (
	"sync"

	"github.com/springcloudnative/edge-service/internal/config"
)

// Registry owns the breakers, one per configured name. It is the only
// holder of breaker state in the process; callers share *Breaker values
// but never replace them.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
	}
}

// Register creates the breaker for a name. Registering an existing name
// returns the already-registered instance: a name never maps to two
// breakers.
func (r *Registry) Register(name string, cfg config.CircuitBreakerConfig) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, cfg)
	r.breakers[name] = b
	return b
}

// Get returns the breaker for a name, or nil.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[name]
}

// Snapshots returns snapshots of all registered breakers.
func (r *Registry) Snapshots() map[string]Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Snapshot, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.Snapshot()
	}
	return out
}
