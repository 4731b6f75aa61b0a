package chains

import (
	"fmt"
	"sync"

	"github.com/petrkrulis2022/cubepay/pkg/types"
)

// Registry manages family adapters for the network families the engine can
// talk to. Constructed once per engine instance and shared read-mostly.
type Registry struct {
	adapters map[types.NetworkFamily]FamilyAdapter
	mu       sync.RWMutex
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[types.NetworkFamily]FamilyAdapter),
	}
}

// Register registers a family adapter (uses adapter.Family() as key).
// If an adapter already exists for the family, it is replaced (idempotent).
func (r *Registry) Register(adapter FamilyAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.adapters[adapter.Family()] = adapter
}

// Get retrieves the adapter for a network family.
func (r *Registry) Get(family types.NetworkFamily) (FamilyAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[family]
	if !exists {
		return nil, fmt.Errorf("no adapter registered for family: %s", family)
	}

	return adapter, nil
}

// IsSupported checks if a network family has a registered adapter.
func (r *Registry) IsSupported(family types.NetworkFamily) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.adapters[family]
	return exists
}

// SupportedFamilies returns all registered families.
func (r *Registry) SupportedFamilies() []types.NetworkFamily {
	r.mu.RLock()
	defer r.mu.RUnlock()

	families := make([]types.NetworkFamily, 0, len(r.adapters))
	for family := range r.adapters {
		families = append(families, family)
	}
	return families
}
