// Package ledger is an in-process ERC-20 token: balances, allowances and an
// append-only event log behind a single lock.
package ledger

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// Token holds the complete state of one ERC-20 token. All methods are safe
// for concurrent use; every mutation is applied atomically.
type Token struct {
	// writeMu spans a write and the delivery of its events, so
	// subscribers receive events in block order.
	writeMu sync.Mutex
	mu      sync.RWMutex

	name        string
	symbol      string
	decimals    uint8
	totalSupply *uint256.Int
	deployer    common.Address

	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int

	block  uint64
	events []erc20.Event

	feed event.Feed
}

// New creates a token and credits the whole initial supply to deployer.
// Deployment counts as block 1 and emits no event.
func New(name, symbol string, decimals uint8, initialSupply *big.Int, deployer common.Address) (*Token, error) {
	if initialSupply == nil {
		initialSupply = new(big.Int)
	}
	if initialSupply.Sign() < 0 {
		return nil, erc20.ErrNegativeAmount
	}
	supply, overflow := uint256.FromBig(initialSupply)
	if overflow {
		return nil, erc20.ErrSupplyOverflow
	}

	t := &Token{
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		totalSupply: supply,
		deployer:    deployer,
		balances:    map[common.Address]*uint256.Int{deployer: supply.Clone()},
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
	}
	t.block = 1
	return t, nil
}

// Name returns the token name.
func (t *Token) Name() string { return t.name }

// Symbol returns the token symbol.
func (t *Token) Symbol() string { return t.symbol }

// Decimals returns the display decimals.
func (t *Token) Decimals() uint8 { return t.decimals }

// Deployer returns the account that received the initial supply.
func (t *Token) Deployer() common.Address { return t.deployer }

// TotalSupply returns the fixed total supply.
func (t *Token) TotalSupply() *big.Int {
	return t.totalSupply.ToBig()
}

// BalanceOf returns the balance of account, zero when unknown.
func (t *Token) BalanceOf(account common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if b, ok := t.balances[account]; ok {
		return b.ToBig()
	}
	return new(big.Int)
}

// Allowance returns how much spender may move out of owner's balance.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.allowanceLocked(owner, spender).ToBig()
}

// BlockNumber returns the number of the last applied operation.
func (t *Token) BlockNumber() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.block
}

// Transfer moves amount from caller to to.
func (t *Token) Transfer(caller, to common.Address, amount *big.Int) (*erc20.Receipt, error) {
	value, err := toUint256(amount, erc20.ErrInsufficientBalance)
	if err != nil {
		return nil, err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.mu.Lock()
	if t.balanceLocked(caller).Lt(value) {
		t.mu.Unlock()
		return nil, erc20.ErrInsufficientBalance
	}
	t.moveLocked(caller, to, value)
	rcpt := t.commitLocked("transfer", erc20.Event{
		Kind:   erc20.KindTransfer,
		From:   caller,
		To:     to,
		Tokens: value.ToBig(),
	})
	t.mu.Unlock()

	t.publish(rcpt)
	return rcpt, nil
}

// Approve sets the allowance of spender over caller's balance. The previous
// allowance is overwritten, not added to.
func (t *Token) Approve(caller, spender common.Address, amount *big.Int) (*erc20.Receipt, error) {
	value, err := toUint256(amount, erc20.ErrAmountOverflow)
	if err != nil {
		return nil, err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.mu.Lock()
	spenders, ok := t.allowances[caller]
	if !ok {
		spenders = make(map[common.Address]*uint256.Int)
		t.allowances[caller] = spenders
	}
	spenders[spender] = value
	rcpt := t.commitLocked("approve", erc20.Event{
		Kind:   erc20.KindApproval,
		From:   caller,
		To:     spender,
		Tokens: value.ToBig(),
	})
	t.mu.Unlock()

	t.publish(rcpt)
	return rcpt, nil
}

// TransferFrom moves amount from from to to on behalf of caller, consuming
// caller's allowance. The allowance is checked before the balance.
func (t *Token) TransferFrom(caller, from, to common.Address, amount *big.Int) (*erc20.Receipt, error) {
	value, err := toUint256(amount, erc20.ErrInsufficientAllowance)
	if err != nil {
		return nil, err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.mu.Lock()
	allowed := t.allowanceLocked(from, caller)
	if allowed.Lt(value) {
		t.mu.Unlock()
		return nil, erc20.ErrInsufficientAllowance
	}
	if t.balanceLocked(from).Lt(value) {
		t.mu.Unlock()
		return nil, erc20.ErrInsufficientBalance
	}
	t.moveLocked(from, to, value)
	t.allowances[from][caller] = new(uint256.Int).Sub(allowed, value)
	rcpt := t.commitLocked("transferFrom", erc20.Event{
		Kind:   erc20.KindTransfer,
		From:   from,
		To:     to,
		Tokens: value.ToBig(),
	})
	t.mu.Unlock()

	t.publish(rcpt)
	return rcpt, nil
}

// SubscribeEvents delivers every event emitted after the call to ch, in
// block order. Writes block until ch has accepted their events, so a
// subscriber must not write to the token from the goroutine reading ch.
func (t *Token) SubscribeEvents(ch chan<- erc20.Event) event.Subscription {
	return t.feed.Subscribe(ch)
}

// Audit checks that the balances add up to the total supply.
func (t *Token) Audit() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sum := new(uint256.Int)
	for addr, b := range t.balances {
		var overflow bool
		sum, overflow = new(uint256.Int).AddOverflow(sum, b)
		if overflow {
			return fmt.Errorf("balance sum overflows at %s", addr.Hex())
		}
	}
	if !sum.Eq(t.totalSupply) {
		return fmt.Errorf("balances sum to %s, total supply is %s", sum.Dec(), t.totalSupply.Dec())
	}
	return nil
}

// Holders returns every account with a non-zero balance.
func (t *Token) Holders() map[common.Address]*big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[common.Address]*big.Int, len(t.balances))
	for addr, b := range t.balances {
		if !b.IsZero() {
			out[addr] = b.ToBig()
		}
	}
	return out
}

// --- internal ---

func (t *Token) balanceLocked(a common.Address) *uint256.Int {
	if b, ok := t.balances[a]; ok {
		return b
	}
	return new(uint256.Int)
}

func (t *Token) allowanceLocked(owner, spender common.Address) *uint256.Int {
	if v, ok := t.allowances[owner][spender]; ok {
		return v
	}
	return new(uint256.Int)
}

// moveLocked assumes balance(from) >= value. The credit cannot overflow
// because every balance is bounded by the total supply.
func (t *Token) moveLocked(from, to common.Address, value *uint256.Int) {
	t.balances[from] = new(uint256.Int).Sub(t.balanceLocked(from), value)
	t.balances[to] = new(uint256.Int).Add(t.balanceLocked(to), value)
}

func (t *Token) commitLocked(op string, ev erc20.Event) *erc20.Receipt {
	t.block++
	ev.BlockNumber = t.block
	ev.TxHash = txHash(t.block, op)
	ev.Index = 0
	t.events = append(t.events, ev)
	return &erc20.Receipt{
		TxHash:      ev.TxHash,
		BlockNumber: t.block,
		Events:      []erc20.Event{ev},
	}
}

func (t *Token) publish(rcpt *erc20.Receipt) {
	for _, ev := range rcpt.Events {
		t.feed.Send(ev)
	}
}

// toUint256 converts amount, reporting overflowErr for values above 2^256-1
// since no balance or allowance can cover them.
func toUint256(amount *big.Int, overflowErr error) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	if amount.Sign() < 0 {
		return nil, erc20.ErrNegativeAmount
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, overflowErr
	}
	return v, nil
}

// txHash derives a stable pseudo transaction hash for block n.
func txHash(n uint64, op string) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	h := sha3.NewLegacyKeccak256()
	h.Write(buf[:])
	h.Write([]byte(op))
	return common.BytesToHash(h.Sum(nil))
}
