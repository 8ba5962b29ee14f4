// Package chains resolves supported chain identifiers to RPC transports and
// deployed contract addresses, and constructs role-scoped clients for them.
package chains

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sessionwallet/provisioning-backend/interfaces"
)

// Registry is the static mapping from chain identifier to chain descriptor.
// Pure lookup, no mutable state after construction.
type Registry struct {
	chains map[interfaces.ChainID]interfaces.ChainDescriptor
}

// NewRegistry builds a registry from a list of descriptors. Duplicate chain
// identifiers are rejected.
func NewRegistry(descriptors []interfaces.ChainDescriptor) (*Registry, error) {
	chains := make(map[interfaces.ChainID]interfaces.ChainDescriptor, len(descriptors))
	for _, desc := range descriptors {
		if desc.ChainID == 0 {
			return nil, fmt.Errorf("chain descriptor with zero chain id")
		}
		if desc.RPCEndpoint == "" {
			return nil, fmt.Errorf("chain %d has no RPC endpoint", desc.ChainID)
		}
		if _, ok := chains[desc.ChainID]; ok {
			return nil, fmt.Errorf("duplicate chain id %d", desc.ChainID)
		}
		chains[desc.ChainID] = desc
	}
	return &Registry{chains: chains}, nil
}

// LoadRegistry reads a registry from a JSON configuration file of the form
// {"chains": [{"chainId": ..., "rpc": ..., "contracts": {...}}, ...]}.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read chain config: %w", err)
	}

	var cfg struct {
		Chains []interfaces.ChainDescriptor `json:"chains"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse chain config %s: %w", path, err)
	}

	return NewRegistry(cfg.Chains)
}

// Resolve returns the descriptor for a chain identifier, or
// ErrUnsupportedChain if the identifier is not in the supported set.
func (r *Registry) Resolve(id interfaces.ChainID) (interfaces.ChainDescriptor, error) {
	desc, ok := r.chains[id]
	if !ok {
		return interfaces.ChainDescriptor{}, fmt.Errorf("%w: chain %d", interfaces.ErrUnsupportedChain, id)
	}
	return desc, nil
}

// RequireProvisioning resolves a chain and additionally checks that all four
// provisioning contracts are configured. Chains with placeholder addresses
// fail fast here rather than submitting a doomed deployment transaction.
func (r *Registry) RequireProvisioning(id interfaces.ChainID) (interfaces.ChainDescriptor, error) {
	desc, err := r.Resolve(id)
	if err != nil {
		return interfaces.ChainDescriptor{}, err
	}
	if !desc.Contracts.Complete() {
		return interfaces.ChainDescriptor{}, fmt.Errorf("%w: chain %d", interfaces.ErrChainNotProvisionable, id)
	}
	return desc, nil
}

// Supported returns the identifiers of all configured chains.
func (r *Registry) Supported() []interfaces.ChainID {
	ids := make([]interfaces.ChainID, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	return ids
}
