package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/XavierBriggs/Tyche/pkg/contracts"
)

// ErrUnknownNetwork is returned for chain ids with no registered module
var ErrUnknownNetwork = errors.New("unknown network")

// NetworkRegistry manages registered network modules
type NetworkRegistry struct {
	networks       map[int64]contracts.NetworkModule
	defaultNetwork int64
	mu             sync.RWMutex
}

// NewNetworkRegistry creates a registry that falls back to defaultNetwork
func NewNetworkRegistry(defaultNetwork int64) *NetworkRegistry {
	return &NetworkRegistry{
		networks:       make(map[int64]contracts.NetworkModule),
		defaultNetwork: defaultNetwork,
	}
}

// Register adds a network module to the registry
func (r *NetworkRegistry) Register(network contracts.NetworkModule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := network.GetNetworkID()
	if _, exists := r.networks[id]; exists {
		return fmt.Errorf("network %d is already registered", id)
	}

	r.networks[id] = network
	return nil
}

// Get retrieves a network module by chain id
func (r *NetworkRegistry) Get(networkID int64) (contracts.NetworkModule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	network, exists := r.networks[networkID]
	return network, exists
}

// ResolveID maps a wallet chain id to the network to browse.
// No wallet (0) or Ethereum mainnet (1) fall back to the default network.
func (r *NetworkRegistry) ResolveID(chainID int64) int64 {
	if chainID == 0 || chainID == 1 {
		return r.defaultNetwork
	}
	return chainID
}

// Resolve returns the module for a wallet chain id
func (r *NetworkRegistry) Resolve(chainID int64) (contracts.NetworkModule, error) {
	id := r.ResolveID(chainID)
	network, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNetwork, id)
	}
	return network, nil
}

// GetAll returns all registered networks ordered by chain id
func (r *NetworkRegistry) GetAll() []contracts.NetworkModule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	networks := make([]contracts.NetworkModule, 0, len(r.networks))
	for _, network := range r.networks {
		networks = append(networks, network)
	}
	sort.Slice(networks, func(i, j int) bool {
		return networks[i].GetNetworkID() < networks[j].GetNetworkID()
	})
	return networks
}

// Count returns the number of registered networks
func (r *NetworkRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.networks)
}
