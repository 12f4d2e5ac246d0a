package pool

import (
	"log/slog"
	"sync"
)

// Registry hands out reference-counted shared pools keyed by resolved
// configuration. Clients created with equal configuration and no explicit
// pool end up on the same Pool; the last release destroys it.
type Registry struct {
	mu    sync.Mutex
	pools map[string]*entry
}

type entry struct {
	pool *Pool
	refs int
}

// DefaultRegistry is the process-wide registry used by sqlrelay clients.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]*entry)}
}

// Retain returns the pool registered under key, creating it on first use,
// and increments its reference count.
func (r *Registry) Retain(key string, cfg Config, dial Dialer, log *slog.Logger) *Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.pools[key]; ok {
		e.refs++
		return e.pool
	}
	p := New(cfg, dial, log)
	r.pools[key] = &entry{pool: p, refs: 1}
	return p
}

// Release drops one reference to the pool registered under key and shuts
// the pool down when the last reference is gone.
func (r *Registry) Release(key string) {
	r.mu.Lock()
	e, ok := r.pools[key]
	if ok {
		e.refs--
		if e.refs <= 0 {
			delete(r.pools, key)
		}
	}
	r.mu.Unlock()
	if ok && e.refs <= 0 {
		e.pool.Shutdown()
	}
}
