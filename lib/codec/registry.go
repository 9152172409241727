package codec

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Factory creates a fresh codec instance.
type Factory func() (Codec, error)

// Descriptor is one registration: a device type name and its factory.
type Descriptor struct {
	Name    string
	Factory Factory
}

// Registry maps codec device type names to factories.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]Descriptor)}
}

// Register adds a factory under name. It returns false if the name is empty,
// the factory is nil or the name is already taken; the existing registration
// is left untouched in that case.
func (r *Registry) Register(name string, factory Factory) bool {
	if name == "" || factory == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.descriptors[name]; ok {
		return false
	}
	r.descriptors[name] = Descriptor{Name: name, Factory: factory}
	return true
}

// Unregister removes name. Codecs created earlier keep working.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.descriptors[name]; !ok {
		return false
	}
	delete(r.descriptors, name)
	return true
}

// CreateByName instantiates the codec registered under name. Unknown names
// yield ErrUnknownCodec.
func (r *Registry) CreateByName(name string) (Codec, error) {
	r.mu.RLock()
	d, ok := r.descriptors[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, name)
	}
	c, err := d.Factory()
	if err != nil {
		return nil, fmt.Errorf("could not create %s codec: %w", name, err)
	}
	if c == nil {
		return nil, fmt.Errorf("factory for %s returned no codec", name)
	}
	return c, nil
}

// Lookup returns the registration for name, if any.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.descriptors))
}

func (r *Registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.descriptors)
}
