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
)

// ErrNoSigner is returned when a write names a caller we hold no key for.
var ErrNoSigner = errors.New("no signer for address")

// Token is a typed client for a deployed ERC20Token contract.
type Token struct {
	backend Backend
	address common.Address
	signers map[common.Address]wallet.TxSigner
}

var _ erc20.Token = (*Token)(nil)

// NewToken binds the contract at address. Writes are signed by whichever of
// signers matches TxOpts.From.
func NewToken(b Backend, address common.Address, signers ...wallet.TxSigner) *Token {
	t := &Token{backend: b, address: address, signers: make(map[common.Address]wallet.TxSigner)}
	for _, s := range signers {
		t.AddSigner(s)
	}
	return t
}

// AddSigner registers s for its address.
func (t *Token) AddSigner(s wallet.TxSigner) { t.signers[s.Address()] = s }

// Address returns the contract address.
func (t *Token) Address() common.Address { return t.address }

// Verify checks that code is deployed at the token address.
func (t *Token) Verify(ctx context.Context) error {
	code, err := t.backend.GetCode(ctx, t.address)
	if err != nil {
		return err
	}
	if len(code) == 0 {
		return fmt.Errorf("no contract deployed at %s", t.address.Hex())
	}
	return nil
}

func (t *Token) Name(ctx context.Context) (string, error) {
	var out string
	err := t.call(ctx, &out, "name")
	return out, err
}

func (t *Token) Symbol(ctx context.Context) (string, error) {
	var out string
	err := t.call(ctx, &out, "symbol")
	return out, err
}

func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	var out uint8
	err := t.call(ctx, &out, "decimals")
	return out, err
}

func (t *Token) TotalSupply(ctx context.Context) (*big.Int, error) {
	out := new(big.Int)
	err := t.call(ctx, &out, "totalSupply")
	return out, err
}

func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	out := new(big.Int)
	err := t.call(ctx, &out, "balanceOf", account)
	return out, err
}

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out := new(big.Int)
	err := t.call(ctx, &out, "allowance", owner, spender)
	return out, err
}

func (t *Token) Transfer(ctx context.Context, opts *erc20.TxOpts, to common.Address, amount *big.Int) (*erc20.Receipt, error) {
	return t.transact(ctx, opts, "transfer", to, amount)
}

func (t *Token) Approve(ctx context.Context, opts *erc20.TxOpts, spender common.Address, amount *big.Int) (*erc20.Receipt, error) {
	return t.transact(ctx, opts, "approve", spender, amount)
}

func (t *Token) TransferFrom(ctx context.Context, opts *erc20.TxOpts, from, to common.Address, amount *big.Int) (*erc20.Receipt, error) {
	return t.transact(ctx, opts, "transferFrom", from, to, amount)
}

// FilterEvents returns Transfer and Approval events in [from, to]. A nil
// to means up to the latest block.
func (t *Token) FilterEvents(ctx context.Context, from uint64, to *uint64) ([]erc20.Event, error) {
	logs, err := t.backend.FilterLogs(ctx, chain.FilterQuery{
		Address:   t.address,
		Topics:    [][]common.Hash{{erc20.TransferTopic, erc20.ApprovalTopic}},
		FromBlock: from,
		ToBlock:   to,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching logs: %w", err)
	}
	return DecodeLogs(logs)
}

func (t *Token) call(ctx context.Context, out interface{}, method string, args ...interface{}) error {
	data, err := ERC20ABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", method, err)
	}
	result, err := t.backend.Call(ctx, chain.CallMsg{To: &t.address, Data: data})
	if err != nil {
		return fmt.Errorf("%s: %w", method, mapRevert(err))
	}
	if len(result) == 0 {
		return fmt.Errorf("%s: empty result (is %s an ERC20 token?)", method, t.address.Hex())
	}
	values, err := ERC20ABI.Unpack(method, result)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", method, err)
	}
	if len(values) != 1 {
		return fmt.Errorf("decoding %s: expected 1 value, got %d", method, len(values))
	}
	switch dst := out.(type) {
	case *string:
		*dst = values[0].(string)
	case *uint8:
		*dst = values[0].(uint8)
	case **big.Int:
		*dst = values[0].(*big.Int)
	default:
		return fmt.Errorf("decoding %s: unsupported output %T", method, out)
	}
	return nil
}

func (t *Token) transact(ctx context.Context, opts *erc20.TxOpts, method string, args ...interface{}) (*erc20.Receipt, error) {
	if opts == nil {
		return nil, fmt.Errorf("%s: missing caller", method)
	}
	signer, ok := t.signers[opts.From]
	if !ok {
		return nil, fmt.Errorf("%s: %w %s", method, ErrNoSigner, opts.From.Hex())
	}
	data, err := ERC20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", method, err)
	}

	receipt, err := transact(ctx, t.backend, signer, &t.address, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	events, err := DecodeLogs(receipt.Logs)
	if err != nil {
		return nil, err
	}
	return &erc20.Receipt{TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber, Events: events}, nil
}
