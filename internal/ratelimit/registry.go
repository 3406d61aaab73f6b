package ratelimit

import "sync"

// Registry hands out one Limiter per source, each bound to the quota
// configured for that source or to the fallback quota.
type Registry struct {
	mu       sync.Mutex
	configs  map[string]Config
	fallback Config
	opts     []Option
	limiters map[string]*Limiter
}

func NewRegistry(configs map[string]Config, fallback Config, opts ...Option) *Registry {
	copied := make(map[string]Config, len(configs))
	for id, cfg := range configs {
		copied[id] = cfg
	}
	return &Registry{
		configs:  copied,
		fallback: fallback,
		opts:     opts,
		limiters: map[string]*Limiter{},
	}
}

// For returns the limiter responsible for sourceID, creating it on first use.
func (r *Registry) For(sourceID string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[sourceID]; ok {
		return l
	}
	cfg, ok := r.configs[sourceID]
	if !ok {
		cfg = r.fallback
	}
	l := New(cfg, r.opts...)
	r.limiters[sourceID] = l
	return l
}

// ResetAll clears the request log of every limiter created so far.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	limiters := make([]*Limiter, 0, len(r.limiters))
	for _, l := range r.limiters {
		limiters = append(limiters, l)
	}
	r.mu.Unlock()

	for _, l := range limiters {
		l.ResetAll()
	}
}
