package provider

import (
	"fmt"

	"github.com/casualjim/confab/internal/registry"
)

// Registry resolves provider IDs to adapters. It is safe for concurrent use.
type Registry struct {
	adapters registry.Registry[ID, Adapter]
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: registry.New[ID, Adapter]()}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.ID().
func (r *Registry) Register(a Adapter) {
	r.adapters.Add(a.ID(), a)
}

// Lookup returns the adapter for id, or an adapter_not_found error.
func (r *Registry) Lookup(id ID) (Adapter, error) {
	if r == nil {
		return nil, NewError(KindAdapterNotFound, id, "no registry configured", nil)
	}
	a, ok := r.adapters.Get(id)
	if !ok {
		return nil, NewError(KindAdapterNotFound, id, fmt.Sprintf("no adapter registered for %q", id), nil)
	}
	return a, nil
}

// Remove unregisters the adapter for id.
func (r *Registry) Remove(id ID) {
	r.adapters.Del(id)
}

// IDs returns the registered provider IDs in sorted order.
func (r *Registry) IDs() []ID {
	return r.adapters.Keys()
}
