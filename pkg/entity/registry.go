package entity

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDuplicateEntity is returned when two configurations claim one entity id.
var ErrDuplicateEntity = errors.New("duplicate entity configuration")

// Registered is an enabled entity and the driver it is indexed into.
type Registered struct {
	Config   Config
	DriverID string
}

// Registry maps entity ids to their configuration. It is immutable after
// NewRegistry.
type Registry struct {
	entries map[string]Registered
}

// NewRegistry builds a registry from module groups. The driver of an entity
// is its own DriverID, else its group's DefaultDriverID, else defaultDriverID.
func NewRegistry(defaultDriverID string, groups ...Group) (*Registry, error) {
	entries := make(map[string]Registered)
	for _, g := range groups {
		for _, c := range g.Entities {
			if c.EntityID == "" {
				return nil, fmt.Errorf("module %q: entity id is required", g.Module)
			}
			if c.Disabled {
				continue
			}
			if _, ok := entries[c.EntityID]; ok {
				return nil, fmt.Errorf("%w: %s (module %q)", ErrDuplicateEntity, c.EntityID, g.Module)
			}

			driverID := c.DriverID
			if driverID == "" {
				driverID = g.DefaultDriverID
			}
			if driverID == "" {
				driverID = defaultDriverID
			}

			entries[c.EntityID] = Registered{Config: c, DriverID: driverID}
		}
	}
	return &Registry{entries: entries}, nil
}

// Lookup returns the registration of entityID.
func (r *Registry) Lookup(entityID string) (Registered, bool) {
	e, ok := r.entries[entityID]
	return e, ok
}

// EntityIDs returns every registered entity id in sorted order.
func (r *Registry) EntityIDs() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DriverIDs returns the distinct drivers referenced by registered entities.
func (r *Registry) DriverIDs() []string {
	seen := make(map[string]struct{})
	for _, e := range r.entries {
		seen[e.DriverID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
