// Package erc20 defines the typed ERC-20 surface shared by the local ledger
// and the JSON-RPC contract client.
package erc20

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Errors reported when a ledger operation is rejected. A rejected operation
// leaves balances, allowances and the event log untouched.
var (
	ErrInsufficientBalance   = errors.New("Token balance too low")
	ErrInsufficientAllowance = errors.New("Allowance too low")
	ErrSupplyOverflow        = errors.New("initial supply exceeds 256 bits")
	ErrAmountOverflow        = errors.New("amount exceeds 256 bits")
	ErrNegativeAmount        = errors.New("amount must not be negative")
)

// EventKind names an ERC-20 event.
type EventKind string

// Event kinds emitted by the ledger.
const (
	KindTransfer EventKind = "Transfer"
	KindApproval EventKind = "Approval"
)

// Event is a decoded Transfer or Approval log. For Approval events From is
// the token owner and To is the spender.
type Event struct {
	Kind        EventKind      `json:"event"`
	From        common.Address `json:"from"`
	To          common.Address `json:"to"`
	Tokens      *big.Int       `json:"tokens"`
	BlockNumber uint64         `json:"blockNumber"`
	TxHash      common.Hash    `json:"transactionHash"`
	Index       uint           `json:"logIndex"`
}

// Owner returns the owner of an Approval event.
func (e Event) Owner() common.Address { return e.From }

// Spender returns the spender of an Approval event.
func (e Event) Spender() common.Address { return e.To }

func (e Event) String() string {
	if e.Kind == KindApproval {
		return fmt.Sprintf("Approval(tokenOwner=%s, spender=%s, tokens=%s)", e.From.Hex(), e.To.Hex(), amountString(e.Tokens))
	}
	return fmt.Sprintf("%s(from=%s, to=%s, tokens=%s)", e.Kind, e.From.Hex(), e.To.Hex(), amountString(e.Tokens))
}

func amountString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

// Receipt is the result of an included write operation.
type Receipt struct {
	TxHash      common.Hash `json:"transactionHash"`
	BlockNumber uint64      `json:"blockNumber"`
	Events      []Event     `json:"events"`
}

// FindEvent returns the first event of the given kind in the receipt.
func (r *Receipt) FindEvent(kind EventKind) (Event, bool) {
	if r == nil {
		return Event{}, false
	}
	for _, ev := range r.Events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return Event{}, false
}

// TxOpts carries the caller of a write operation (msg.sender).
type TxOpts struct {
	From common.Address
}

// Metadata is the immutable token description.
type Metadata struct {
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Decimals    uint8    `json:"decimals"`
	TotalSupply *big.Int `json:"totalSupply"`
}

// Reader is the read-only half of an ERC-20 token.
type Reader interface {
	Name(ctx context.Context) (string, error)
	Symbol(ctx context.Context) (string, error)
	Decimals(ctx context.Context) (uint8, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
}

// Token is a typed ERC-20 client. Write methods return once the operation
// has been included.
type Token interface {
	Reader
	Transfer(ctx context.Context, opts *TxOpts, to common.Address, amount *big.Int) (*Receipt, error)
	Approve(ctx context.Context, opts *TxOpts, spender common.Address, amount *big.Int) (*Receipt, error)
	TransferFrom(ctx context.Context, opts *TxOpts, from, to common.Address, amount *big.Int) (*Receipt, error)
}

// Watcher is implemented by tokens that can push events as they happen.
type Watcher interface {
	WatchEvents(ch chan<- Event) (unsubscribe func())
}

// FetchMetadata reads name, symbol, decimals and total supply.
func FetchMetadata(ctx context.Context, r Reader) (*Metadata, error) {
	name, err := r.Name(ctx)
	if err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	symbol, err := r.Symbol(ctx)
	if err != nil {
		return nil, fmt.Errorf("symbol: %w", err)
	}
	decimals, err := r.Decimals(ctx)
	if err != nil {
		return nil, fmt.Errorf("decimals: %w", err)
	}
	supply, err := r.TotalSupply(ctx)
	if err != nil {
		return nil, fmt.Errorf("totalSupply: %w", err)
	}
	return &Metadata{Name: name, Symbol: symbol, Decimals: decimals, TotalSupply: supply}, nil
}

// ErrorFromRevert maps a revert reason onto the ledger's sentinel errors.
// Unknown reasons are returned as a plain error.
func ErrorFromRevert(reason string) error {
	switch {
	case containsFold(reason, ErrInsufficientBalance.Error()),
		containsFold(reason, "transfer amount exceeds balance"),
		containsFold(reason, "ERC20InsufficientBalance"):
		return fmt.Errorf("%w (%s)", ErrInsufficientBalance, reason)
	case containsFold(reason, ErrInsufficientAllowance.Error()),
		containsFold(reason, "insufficient allowance"),
		containsFold(reason, "ERC20InsufficientAllowance"):
		return fmt.Errorf("%w (%s)", ErrInsufficientAllowance, reason)
	}
	return errors.New(reason)
}
