package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// ErrDeploymentNotFound is returned when no deployment matches.
var ErrDeploymentNotFound = errors.New("deployment not found")

// Entry records one deployed token.
type Entry struct {
	Name       string `json:"name"` // alias, usually the symbol
	Network    string `json:"network"`
	Address    string `json:"address"`
	TxHash     string `json:"tx_hash,omitempty"`
	Deployer   string `json:"deployer,omitempty"`
	DeployedAt string `json:"deployed_at,omitempty"`
}

// Registry stores deployed tokens per network in a JSON file.
type Registry struct {
	path      string
	contracts map[string]*Entry // key: "name@network"
}

// NewRegistry creates a Registry backed by a JSON file.
func NewRegistry(path string) *Registry {
	return &Registry{
		path:      path,
		contracts: make(map[string]*Entry),
	}
}

// Load reads stored deployments from disk. A missing file is not an error.
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parsing %s: %w", r.path, err)
	}
	for i := range entries {
		e := &entries[i]
		r.contracts[key(e.Name, e.Network)] = e
	}
	return nil
}

// Save writes all deployments to disk.
func (r *Registry) Save() error {
	data, err := json.MarshalIndent(r.All(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(r.path, data, 0o600)
}

// Add adds or updates a deployment.
func (r *Registry) Add(e *Entry) {
	r.contracts[key(e.Name, e.Network)] = e
}

// Get returns a deployment by name and network.
func (r *Registry) Get(name, network string) (*Entry, error) {
	e, ok := r.contracts[key(name, network)]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrDeploymentNotFound, name, network)
	}
	return e, nil
}

// Resolve turns a --token value into an address: either a literal hex
// address or the name of a deployment on network.
func (r *Registry) Resolve(nameOrAddr, network string) (common.Address, error) {
	if common.IsHexAddress(nameOrAddr) {
		return common.HexToAddress(nameOrAddr), nil
	}
	e, err := r.Get(nameOrAddr, network)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(e.Address), nil
}

// All returns every deployment sorted by network then name.
func (r *Registry) All() []Entry {
	out := make([]Entry, 0, len(r.contracts))
	for _, e := range r.contracts {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Network != out[j].Network {
			return out[i].Network < out[j].Network
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Remove deletes a deployment.
func (r *Registry) Remove(name, network string) error {
	k := key(name, network)
	if _, ok := r.contracts[k]; !ok {
		return fmt.Errorf("%w: %s on %s", ErrDeploymentNotFound, name, network)
	}
	delete(r.contracts, k)
	return nil
}

func key(name, network string) string {
	return name + "@" + network
}
