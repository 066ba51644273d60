// Package registry maps wire entity type names to their kind descriptors.
// Every type sync touches must be registered explicitly at startup.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/prudhvinik1/tenantsync/internal/entities"
	"github.com/prudhvinik1/tenantsync/internal/syncerr"
)

type Registry struct {
	mu    sync.RWMutex
	kinds map[string]entities.Kind
}

func New() *Registry {
	return &Registry{kinds: make(map[string]entities.Kind)}
}

// NewDefault returns a registry holding the built-in kinds.
func NewDefault() *Registry {
	r := New()
	for _, k := range entities.Builtin() {
		r.MustRegister(k.Name, k)
	}
	return r
}

// Register adds or replaces the mapping for typeName. Last registration wins.
func (r *Registry) Register(typeName string, kind entities.Kind) error {
	if typeName == "" {
		return fmt.Errorf("entity type name is required")
	}
	if err := kind.Validate(); err != nil {
		return fmt.Errorf("failed to register %s: %w", typeName, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[typeName] = kind
	return nil
}

func (r *Registry) MustRegister(typeName string, kind entities.Kind) {
	if err := r.Register(typeName, kind); err != nil {
		panic(err)
	}
}

// Resolve returns the kind for typeName or an UnknownEntityType error.
func (r *Registry) Resolve(typeName string) (entities.Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kind, ok := r.kinds[typeName]
	if !ok {
		return entities.Kind{}, syncerr.UnknownEntityType(typeName)
	}
	return kind, nil
}

// ResolveAll resolves every name, failing on the first unknown one.
func (r *Registry) ResolveAll(typeNames []string) ([]entities.Kind, error) {
	kinds := make([]entities.Kind, 0, len(typeNames))
	for _, name := range typeNames {
		kind, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// Types lists registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
