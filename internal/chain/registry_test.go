package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()
	dev, err := r.GetByName("Development")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8545", dev.RPC)
	assert.True(t, dev.Local)

	n, err := r.GetByChainID(11155111)
	require.NoError(t, err)
	assert.Equal(t, "sepolia", n.Name)
}

func TestRegistryNotFound(t *testing.T) {
	_, err := NewRegistry().GetByName("nope")
	assert.ErrorIs(t, err, ErrNetworkNotFound)
	_, err = NewRegistry().GetByChainID(42)
	assert.ErrorIs(t, err, ErrNetworkNotFound)
}

func TestRegistryExtraOverrides(t *testing.T) {
	r := NewRegistry(Network{Name: "development", RPC: "http://localhost:9545", ChainID: 31337, Local: true})
	dev, err := r.GetByName("development")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9545", dev.RPC)

	_, err = r.GetByChainID(1337)
	assert.ErrorIs(t, err, ErrNetworkNotFound)
	_, err = r.GetByChainID(31337)
	assert.NoError(t, err)
}

func TestRegistryAllSorted(t *testing.T) {
	all := NewRegistry().All()
	require.Len(t, all, 4)
	assert.Equal(t, "development", all[0].Name)
	assert.Equal(t, "sepolia", all[3].Name)
}

func TestTxURL(t *testing.T) {
	n := Network{Explorer: "https://etherscan.io/"}
	assert.Equal(t, "https://etherscan.io/tx/0x1", n.TxURL("0x1"))
	assert.Empty(t, (&Network{}).TxURL("0x1"))
}
