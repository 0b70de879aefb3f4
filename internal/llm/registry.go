package llm

import (
	"sort"
	"sync"
)

// Registry maps backend names to providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[ProviderName]Provider
}

// NewRegistry builds a registry from the given providers. Later entries with
// the same name replace earlier ones.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[ProviderName]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name ProviderName) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Other returns the provider registered under the opposite name.
func (r *Registry) Other(name ProviderName) (Provider, bool) {
	return r.Get(name.Other())
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProviderName, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Descriptors snapshots every provider's current descriptor.
func (r *Registry) Descriptors() map[ProviderName]Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[ProviderName]Descriptor, len(r.providers))
	for n, p := range r.providers {
		out[n] = p.Descriptor()
	}
	return out
}
