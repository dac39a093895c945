package contract_test

import (
	"path/filepath"
	"testing"

	"github.com/Mohsinsiddi/tkn/internal/contract"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func TestNewRegistryEmpty(t *testing.T) {
	reg := contract.NewRegistry(filepath.Join(t.TempDir(), "deployments.json"))
	require.NoError(t, reg.Load())
	assert.Empty(t, reg.All())
}

func TestRegistryAddAndGet(t *testing.T) {
	reg := contract.NewRegistry(filepath.Join(t.TempDir(), "deployments.json"))
	reg.Add(&contract.Entry{Name: "TKN", Network: "development", Address: tokenAddr})

	got, err := reg.Get("TKN", "development")
	require.NoError(t, err)
	assert.Equal(t, tokenAddr, got.Address)

	_, err = reg.Get("TKN", "sepolia")
	assert.ErrorIs(t, err, contract.ErrDeploymentNotFound)
}

func TestRegistryAddOverwritesExisting(t *testing.T) {
	reg := contract.NewRegistry(filepath.Join(t.TempDir(), "deployments.json"))
	reg.Add(&contract.Entry{Name: "TKN", Network: "development", Address: "0x01"})
	reg.Add(&contract.Entry{Name: "TKN", Network: "development", Address: "0x02"})

	got, err := reg.Get("TKN", "development")
	require.NoError(t, err)
	assert.Equal(t, "0x02", got.Address)
	assert.Len(t, reg.All(), 1)
}

func TestRegistrySaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "deployments.json")
	reg := contract.NewRegistry(path)
	reg.Add(&contract.Entry{Name: "TKN", Network: "sepolia", Address: tokenAddr})
	reg.Add(&contract.Entry{Name: "ABC", Network: "development", Address: tokenAddr})
	require.NoError(t, reg.Save())

	again := contract.NewRegistry(path)
	require.NoError(t, again.Load())
	all := again.All()
	require.Len(t, all, 2)
	assert.Equal(t, "development", all[0].Network)
}

func TestRegistryResolve(t *testing.T) {
	reg := contract.NewRegistry(filepath.Join(t.TempDir(), "deployments.json"))
	reg.Add(&contract.Entry{Name: "TKN", Network: "development", Address: tokenAddr})

	addr, err := reg.Resolve("TKN", "development")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(tokenAddr), addr)

	addr, err = reg.Resolve(tokenAddr, "anything")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(tokenAddr), addr)

	_, err = reg.Resolve("nope", "development")
	assert.ErrorIs(t, err, contract.ErrDeploymentNotFound)
}

func TestRegistryRemove(t *testing.T) {
	reg := contract.NewRegistry(filepath.Join(t.TempDir(), "deployments.json"))
	reg.Add(&contract.Entry{Name: "TKN", Network: "development", Address: tokenAddr})
	require.NoError(t, reg.Remove("TKN", "development"))
	assert.ErrorIs(t, reg.Remove("TKN", "development"), contract.ErrDeploymentNotFound)
}
