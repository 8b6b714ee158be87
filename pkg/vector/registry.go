package vector

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps driver ids to drivers.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

// NewRegistry creates a registry holding drivers, keyed by their ID.
func NewRegistry(drivers ...Driver) *Registry {
	r := &Registry{drivers: make(map[string]Driver, len(drivers))}
	for _, d := range drivers {
		r.Register(d)
	}
	return r
}

// Register adds or replaces a driver.
func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.ID()] = d
}

// Get resolves a driver id. Unknown ids return ErrDriverNotRegistered.
func (r *Registry) Get(id string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drivers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDriverNotRegistered, id)
	}
	return d, nil
}

// IDs returns the registered driver ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.drivers))
	for id := range r.drivers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes every registered driver and returns the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, d := range r.drivers {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
