package devchain

import (
	"context"
	"math/big"
	"testing"

	"github.com/Mohsinsiddi/tkn/internal/chain"
	"github.com/Mohsinsiddi/tkn/internal/contract"
	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/Mohsinsiddi/tkn/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func devAccounts(t *testing.T) []wallet.DevAccount {
	t.Helper()
	accts, err := wallet.DevAccounts(2)
	require.NoError(t, err)
	return accts
}

func TestDeployCreatesLedger(t *testing.T) {
	c := New(DefaultChainID)
	accts := devAccounts(t)

	dep, err := contract.Deploy(ctx, c, accts[0].Signer(), Artifact(), contract.DeployParams{
		Name: "My Token", Symbol: "TKN", Decimals: 18, InitialSupply: big.NewInt(1000),
	})
	require.NoError(t, err)

	led, ok := c.Ledger(dep.Address)
	require.True(t, ok)
	assert.Equal(t, "TKN", led.Symbol())
	assert.Equal(t, int64(1000), led.BalanceOf(accts[0].Address).Int64())
	assert.Equal(t, 1, c.Sent())

	code, err := c.GetCode(ctx, dep.Address)
	require.NoError(t, err)
	assert.NotEmpty(t, code)

	nonce, err := c.PendingNonce(ctx, accts[0].Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)
}

func TestDeployRejectsForeignCode(t *testing.T) {
	c := New(DefaultChainID)
	art := Artifact()
	art.Bytecode = []byte{0x00, 0x01}
	_, err := contract.Deploy(ctx, c, devAccounts(t)[0].Signer(), art, contract.DeployParams{Name: "X", Symbol: "X"})
	assert.ErrorIs(t, err, errUnknownCode)
	assert.Zero(t, c.Sent())
}

func TestRejectsStaleNonce(t *testing.T) {
	c := New(DefaultChainID)
	acct := devAccounts(t)[0]
	to := common.HexToAddress("0x01")
	tx := types.NewTx(&types.DynamicFeeTx{ChainID: big.NewInt(DefaultChainID), Nonce: 5, To: &to, Gas: 21000, GasFeeCap: big.NewInt(3), GasTipCap: big.NewInt(1)})
	raw, err := acct.Signer().SignTx(tx, big.NewInt(DefaultChainID))
	require.NoError(t, err)

	_, err = c.SendRawTransaction(ctx, raw)
	var rpcErr *chain.RPCError
	assert.ErrorAs(t, err, &rpcErr)
}

func TestCallUnknownAddress(t *testing.T) {
	c := New(DefaultChainID)
	to := common.HexToAddress("0x01")
	out, err := c.Call(ctx, chain.CallMsg{To: &to, Data: []byte{1, 2, 3, 4}})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestEstimateGasReverts(t *testing.T) {
	c := New(DefaultChainID)
	accts := devAccounts(t)
	dep, err := contract.Deploy(ctx, c, accts[0].Signer(), Artifact(), contract.DeployParams{
		Name: "My Token", Symbol: "TKN", Decimals: 18, InitialSupply: big.NewInt(10),
	})
	require.NoError(t, err)

	data, err := contract.ERC20ABI.Pack("transferFrom", accts[0].Address, accts[1].Address, big.NewInt(1))
	require.NoError(t, err)
	_, err = c.EstimateGas(ctx, chain.CallMsg{From: accts[1].Address, To: &dep.Address, Data: data})
	var rev *chain.RevertError
	require.ErrorAs(t, err, &rev)
	assert.Equal(t, erc20.ErrInsufficientAllowance.Error(), rev.Reason)
}
