package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/tkn/internal/chain"
	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/Mohsinsiddi/tkn/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is the subset of the JSON-RPC client the contract layer needs.
// *chain.EVMClient implements it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	Call(ctx context.Context, msg chain.CallMsg) ([]byte, error)
	EstimateGas(ctx context.Context, msg chain.CallMsg) (uint64, error)
	PendingNonce(ctx context.Context, addr common.Address) (uint64, error)
	SuggestFees(ctx context.Context) (*chain.Fees, error)
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error)
	FilterLogs(ctx context.Context, q chain.FilterQuery) ([]types.Log, error)
	GetCode(ctx context.Context, addr common.Address) ([]byte, error)
}

var _ Backend = (*chain.EVMClient)(nil)

// gasBufferPct is added on top of eth_estimateGas.
const gasBufferPct = 20

// transact estimates, signs, broadcasts and waits for one transaction. A
// nil to deploys data as contract creation code. Reverts detected during
// estimation are mapped onto the erc20 sentinel errors and nothing is sent.
func transact(ctx context.Context, b Backend, signer wallet.TxSigner, to *common.Address, data []byte) (*chain.Receipt, error) {
	from := signer.Address()
	msg := chain.CallMsg{From: from, To: to, Data: data}

	gas, err := b.EstimateGas(ctx, msg)
	if err != nil {
		return nil, mapRevert(err)
	}
	fees, err := b.SuggestFees(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting gas price: %w", err)
	}
	nonce, err := b.PendingNonce(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("getting nonce: %w", err)
	}
	chainID, err := b.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting chain id: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: fees.GasTipCap,
		GasFeeCap: fees.GasFeeCap,
		Gas:       chain.WithBuffer(gas, gasBufferPct),
		To:        to,
		Value:     big.NewInt(0),
		Data:      data,
	})

	raw, err := signer.SignTx(tx, chainID)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}

	hash, err := b.SendRawTransaction(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("broadcasting transaction: %w", mapRevert(err))
	}

	return b.WaitForReceipt(ctx, hash)
}

// mapRevert turns a revert into erc20.ErrInsufficientBalance or
// erc20.ErrInsufficientAllowance when the reason matches.
func mapRevert(err error) error {
	var rev *chain.RevertError
	if errors.As(err, &rev) {
		return erc20.ErrorFromRevert(rev.Reason)
	}
	return err
}
