package ledger

import (
	"context"
	"math/big"

	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/ethereum/go-ethereum/common"
)

// Binding exposes a local Token through the erc20.Token interface so it can
// stand in for a deployed contract.
type Binding struct {
	token *Token
}

var (
	_ erc20.Token   = (*Binding)(nil)
	_ erc20.Watcher = (*Binding)(nil)
)

// Bind wraps t.
func Bind(t *Token) *Binding { return &Binding{token: t} }

// Ledger returns the wrapped token.
func (b *Binding) Ledger() *Token { return b.token }

func (b *Binding) Name(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return b.token.Name(), nil
}

func (b *Binding) Symbol(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return b.token.Symbol(), nil
}

func (b *Binding) Decimals(ctx context.Context) (uint8, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return b.token.Decimals(), nil
}

func (b *Binding) TotalSupply(ctx context.Context) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.token.TotalSupply(), nil
}

func (b *Binding) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.token.BalanceOf(account), nil
}

func (b *Binding) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.token.Allowance(owner, spender), nil
}

func (b *Binding) Transfer(ctx context.Context, opts *erc20.TxOpts, to common.Address, amount *big.Int) (*erc20.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.token.Transfer(caller(opts), to, amount)
}

func (b *Binding) Approve(ctx context.Context, opts *erc20.TxOpts, spender common.Address, amount *big.Int) (*erc20.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.token.Approve(caller(opts), spender, amount)
}

func (b *Binding) TransferFrom(ctx context.Context, opts *erc20.TxOpts, from, to common.Address, amount *big.Int) (*erc20.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.token.TransferFrom(caller(opts), from, to, amount)
}

// WatchEvents forwards ledger events to ch until unsubscribe is called.
func (b *Binding) WatchEvents(ch chan<- erc20.Event) func() {
	sub := b.token.SubscribeEvents(ch)
	return sub.Unsubscribe
}

func caller(opts *erc20.TxOpts) common.Address {
	if opts == nil {
		return common.Address{}
	}
	return opts.From
}
