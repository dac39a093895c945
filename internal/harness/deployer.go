package harness

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/tkn/internal/contract"
	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/Mohsinsiddi/tkn/internal/ledger"
	"github.com/Mohsinsiddi/tkn/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
)

// Instance is a freshly deployed token plus the accounts scenarios refer to
// by index. accounts[0] deployed it and holds the initial supply.
type Instance struct {
	Token    erc20.Token
	Address  common.Address // zero for local tokens
	Accounts []common.Address
	// Audit, when set, verifies internal invariants after every step.
	Audit func() error
}

// Deployer creates one token per scenario.
type Deployer interface {
	Name() string
	Deploy(ctx context.Context, name, symbol string, decimals uint8, initialSupply *big.Int) (*Instance, error)
}

// LocalDeployer deploys in-process ledgers owned by the dev accounts.
type LocalDeployer struct {
	accounts []common.Address
}

// NewLocalDeployer uses the first n dev accounts.
func NewLocalDeployer(n int) (*LocalDeployer, error) {
	addrs, err := wallet.DevAddresses(n)
	if err != nil {
		return nil, err
	}
	return &LocalDeployer{accounts: addrs}, nil
}

func (d *LocalDeployer) Name() string { return "local" }

func (d *LocalDeployer) Deploy(_ context.Context, name, symbol string, decimals uint8, initialSupply *big.Int) (*Instance, error) {
	tok, err := ledger.New(name, symbol, decimals, initialSupply, d.accounts[0])
	if err != nil {
		return nil, err
	}
	return &Instance{
		Token:    ledger.Bind(tok),
		Accounts: d.accounts,
		Audit:    tok.Audit,
	}, nil
}

// ChainDeployer deploys the contract from an artifact through a backend and
// drives it with the given signers; signers[0] deploys.
type ChainDeployer struct {
	backend  contract.Backend
	artifact *contract.Artifact
	signers  []wallet.TxSigner
	label    string
}

// NewChainDeployer returns a deployer for backend. label names the network
// in reports.
func NewChainDeployer(label string, backend contract.Backend, art *contract.Artifact, signers ...wallet.TxSigner) (*ChainDeployer, error) {
	if len(signers) == 0 {
		return nil, errors.New("at least one signing account is required")
	}
	if err := art.HasERC20(); err != nil {
		return nil, err
	}
	return &ChainDeployer{backend: backend, artifact: art, signers: signers, label: label}, nil
}

func (d *ChainDeployer) Name() string { return d.label }

func (d *ChainDeployer) Deploy(ctx context.Context, name, symbol string, decimals uint8, initialSupply *big.Int) (*Instance, error) {
	dep, err := contract.Deploy(ctx, d.backend, d.signers[0], d.artifact, contract.DeployParams{
		Name:          name,
		Symbol:        symbol,
		Decimals:      decimals,
		InitialSupply: initialSupply,
	})
	if err != nil {
		return nil, err
	}
	tok := contract.NewToken(d.backend, dep.Address, d.signers...)
	if err := tok.Verify(ctx); err != nil {
		return nil, fmt.Errorf("verifying %s: %w", dep.Address.Hex(), err)
	}
	accounts := make([]common.Address, len(d.signers))
	for i, s := range d.signers {
		accounts[i] = s.Address()
	}
	return &Instance{Token: tok, Address: dep.Address, Accounts: accounts}, nil
}
