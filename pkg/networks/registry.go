package networks

import (
	"errors"
	"fmt"

	"github.com/petrkrulis2022/cubepay/pkg/types"
)

// ErrNotFound is returned for unknown network identifiers. Callers must
// treat it as a request-validation error, not a transient fault.
var ErrNotFound = errors.New("network not found")

// Descriptor is the identity and capability of one blockchain network.
// Loaded once at process start from static configuration, immutable after.
type Descriptor struct {
	NetworkID      string
	DisplayName    string
	Family         types.NetworkFamily
	FeeTokenSymbol string
	RelaySupported bool

	// Lanes maps each reachable destination network to the relay lane that
	// serves it. A network never carries a lane to itself.
	Lanes map[string]types.Lane
}

// Registry is a pure lookup over the static network catalog. All methods are
// side-effect free and safe for concurrent use.
type Registry struct {
	descriptors map[string]Descriptor
}

// NewRegistry builds a registry from static configuration. It rejects
// duplicate network IDs and self-referencing lanes at construction so the
// catalog invariants hold for the life of the process.
func NewRegistry(catalog []Descriptor) (*Registry, error) {
	descriptors := make(map[string]Descriptor, len(catalog))
	for _, d := range catalog {
		if d.NetworkID == "" {
			return nil, fmt.Errorf("descriptor %q has empty network ID", d.DisplayName)
		}
		if _, dup := descriptors[d.NetworkID]; dup {
			return nil, fmt.Errorf("duplicate network ID %s", d.NetworkID)
		}
		if _, self := d.Lanes[d.NetworkID]; self {
			return nil, fmt.Errorf("network %s declares a lane to itself", d.NetworkID)
		}
		descriptors[d.NetworkID] = d
	}
	return &Registry{descriptors: descriptors}, nil
}

// Describe returns the descriptor for networkID, or ErrNotFound.
func (r *Registry) Describe(networkID string) (Descriptor, error) {
	d, ok := r.descriptors[networkID]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, networkID)
	}
	return d, nil
}

// CanReach reports whether a payment can settle from source to destination.
// Same-network is always reachable: it needs no relay.
func (r *Registry) CanReach(source, destination string) bool {
	if source == destination {
		_, ok := r.descriptors[source]
		return ok
	}
	d, ok := r.descriptors[source]
	if !ok || !d.RelaySupported {
		return false
	}
	_, ok = d.Lanes[destination]
	return ok
}

// LaneFor returns the relay lane from source to destination, if one is
// registered.
func (r *Registry) LaneFor(source, destination string) (types.Lane, bool) {
	d, ok := r.descriptors[source]
	if !ok {
		return types.Lane{}, false
	}
	lane, ok := d.Lanes[destination]
	return lane, ok
}

// NetworkIDs returns every registered network identifier.
func (r *Registry) NetworkIDs() []string {
	ids := make([]string, 0, len(r.descriptors))
	for id := range r.descriptors {
		ids = append(ids, id)
	}
	return ids
}
