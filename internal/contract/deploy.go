package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/tkn/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
)

// DeployParams are the ERC20Token constructor arguments.
type DeployParams struct {
	Name          string
	Symbol        string
	Decimals      uint8
	InitialSupply *big.Int
}

// Deployment is the outcome of a successful Deploy.
type Deployment struct {
	Address     common.Address
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// DeployData returns the contract creation code: the artifact's bytecode
// followed by the ABI-encoded constructor arguments.
func DeployData(art *Artifact, p DeployParams) ([]byte, error) {
	if len(art.Bytecode) == 0 {
		return nil, ErrNoBytecode
	}
	supply := p.InitialSupply
	if supply == nil {
		supply = new(big.Int)
	}
	args, err := art.ABI.Pack("", p.Name, p.Symbol, p.Decimals, supply)
	if err != nil {
		return nil, fmt.Errorf("encoding constructor args: %w", err)
	}
	data := make([]byte, 0, len(art.Bytecode)+len(args))
	data = append(data, art.Bytecode...)
	return append(data, args...), nil
}

// Deploy creates the token contract from art, signed by signer, and waits
// for it to be mined. The whole initial supply belongs to the signer.
func Deploy(ctx context.Context, b Backend, signer wallet.TxSigner, art *Artifact, p DeployParams) (*Deployment, error) {
	data, err := DeployData(art, p)
	if err != nil {
		return nil, err
	}
	receipt, err := transact(ctx, b, signer, nil, data)
	if err != nil {
		return nil, fmt.Errorf("deploying %s: %w", p.Symbol, err)
	}
	if receipt.ContractAddress == (common.Address{}) {
		return nil, fmt.Errorf("deploying %s: receipt has no contract address", p.Symbol)
	}
	return &Deployment{
		Address:     receipt.ContractAddress,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
	}, nil
}
