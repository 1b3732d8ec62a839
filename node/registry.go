package node

import (
	"sync"

	"go.stakecore.dev/core/types"
)

// A Registry publishes each miner's eligibility public key so peers can
// check a remote block's mint-eligibility claim against prevBlockHash
// without trusting the announcing miner's word for it. In a real network
// this would travel with the announcement or a peer handshake; here it is
// the one piece of shared state every Miner in a simulation is constructed
// with, standing in for that discovery step.
type Registry struct {
	mu   sync.Mutex
	keys map[string]types.PublicKey
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{keys: make(map[string]types.PublicKey)}
}

func (r *Registry) register(name string, pub types.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[name] = pub
}

// Lookup returns the eligibility public key registered for name.
func (r *Registry) Lookup(name string) (types.PublicKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pub, ok := r.keys[name]
	return pub, ok
}
