package chain

import (
	"errors"
	"sort"
	"strings"
)

// ErrNetworkNotFound is returned when a network is not in the registry.
var ErrNetworkNotFound = errors.New("network not found")

// Network describes an RPC endpoint a token can be deployed to.
type Network struct {
	Name     string `json:"name" mapstructure:"name"`
	RPC      string `json:"rpc" mapstructure:"rpc"`
	ChainID  int64  `json:"chain_id" mapstructure:"chain_id"`
	Explorer string `json:"explorer,omitempty" mapstructure:"explorer"`
	// Local networks expose unlocked node accounts and mine instantly.
	Local bool `json:"local" mapstructure:"local"`
}

// TxURL returns the explorer link for a transaction, or "" if none is set.
func (n *Network) TxURL(hash string) string {
	if n.Explorer == "" {
		return ""
	}
	return strings.TrimRight(n.Explorer, "/") + "/tx/" + hash
}

// Registry is the set of known networks.
type Registry struct {
	byName map[string]*Network
	byID   map[int64]*Network
}

// NewRegistry returns the built-in networks plus any extras. Extras replace
// built-ins of the same name.
func NewRegistry(extra ...Network) *Registry {
	r := &Registry{
		byName: make(map[string]*Network),
		byID:   make(map[int64]*Network),
	}
	for _, n := range append(builtinNetworks(), extra...) {
		r.Add(n)
	}
	return r
}

// Add registers n, replacing any network with the same name.
func (r *Registry) Add(n Network) {
	n.Name = strings.ToLower(n.Name)
	if old, ok := r.byName[n.Name]; ok && old.ChainID != 0 {
		delete(r.byID, old.ChainID)
	}
	nn := n
	r.byName[n.Name] = &nn
	if n.ChainID != 0 {
		r.byID[n.ChainID] = &nn
	}
}

// All returns every network sorted by name.
func (r *Registry) All() []Network {
	out := make([]Network, 0, len(r.byName))
	for _, n := range r.byName {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetByName finds a network by name (case-insensitive).
func (r *Registry) GetByName(name string) (*Network, error) {
	n, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, ErrNetworkNotFound
	}
	return n, nil
}

// GetByChainID finds a network by its chain ID.
func (r *Registry) GetByChainID(id int64) (*Network, error) {
	n, ok := r.byID[id]
	if !ok {
		return nil, ErrNetworkNotFound
	}
	return n, nil
}

func builtinNetworks() []Network {
	return []Network{
		{Name: "development", RPC: "http://127.0.0.1:8545", ChainID: 1337, Local: true},
		{Name: "ganache", RPC: "http://127.0.0.1:7545", ChainID: 5777, Local: true},
		{
			Name:     "sepolia",
			RPC:      "https://ethereum-sepolia-rpc.publicnode.com",
			ChainID:  11155111,
			Explorer: "https://sepolia.etherscan.io",
		},
		{
			Name:     "mainnet",
			RPC:      "https://ethereum-rpc.publicnode.com",
			ChainID:  1,
			Explorer: "https://etherscan.io",
		},
	}
}
