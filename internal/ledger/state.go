package ledger

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// State is the serialisable form of a Token. Amounts are decimal strings so
// the JSON stays readable and lossless.
type State struct {
	Name        string                       `json:"name"`
	Symbol      string                       `json:"symbol"`
	Decimals    uint8                        `json:"decimals"`
	TotalSupply string                       `json:"total_supply"`
	Deployer    common.Address               `json:"deployer"`
	Balances    map[string]string            `json:"balances"`
	Allowances  map[string]map[string]string `json:"allowances"`
	Block       uint64                       `json:"block"`
	Events      []erc20.Event                `json:"events"`
}

// Snapshot returns a consistent copy of the token state.
func (t *Token) Snapshot() *State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st := &State{
		Name:        t.name,
		Symbol:      t.symbol,
		Decimals:    t.decimals,
		TotalSupply: t.totalSupply.Dec(),
		Deployer:    t.deployer,
		Balances:    make(map[string]string, len(t.balances)),
		Allowances:  make(map[string]map[string]string, len(t.allowances)),
		Block:       t.block,
		Events:      make([]erc20.Event, len(t.events)),
	}
	for addr, b := range t.balances {
		st.Balances[addr.Hex()] = b.Dec()
	}
	for owner, spenders := range t.allowances {
		m := make(map[string]string, len(spenders))
		for spender, v := range spenders {
			m[spender.Hex()] = v.Dec()
		}
		st.Allowances[owner.Hex()] = m
	}
	copy(st.Events, t.events)
	return st
}

// Restore rebuilds a token from a snapshot and verifies its invariants.
func Restore(st *State) (*Token, error) {
	if st == nil {
		return nil, fmt.Errorf("nil state")
	}
	supply, err := uint256.FromDecimal(st.TotalSupply)
	if err != nil {
		return nil, fmt.Errorf("total supply: %w", err)
	}
	t := &Token{
		name:        st.Name,
		symbol:      st.Symbol,
		decimals:    st.Decimals,
		totalSupply: supply,
		deployer:    st.Deployer,
		balances:    make(map[common.Address]*uint256.Int, len(st.Balances)),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int, len(st.Allowances)),
		block:       st.Block,
		events:      append([]erc20.Event(nil), st.Events...),
	}
	for addr, dec := range st.Balances {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid balance address %q", addr)
		}
		v, err := uint256.FromDecimal(dec)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", addr, err)
		}
		t.balances[common.HexToAddress(addr)] = v
	}
	for owner, spenders := range st.Allowances {
		if !common.IsHexAddress(owner) {
			return nil, fmt.Errorf("invalid allowance owner %q", owner)
		}
		m := make(map[common.Address]*uint256.Int, len(spenders))
		for spender, dec := range spenders {
			if !common.IsHexAddress(spender) {
				return nil, fmt.Errorf("invalid allowance spender %q", spender)
			}
			v, err := uint256.FromDecimal(dec)
			if err != nil {
				return nil, fmt.Errorf("allowance %s→%s: %w", owner, spender, err)
			}
			m[common.HexToAddress(spender)] = v
		}
		t.allowances[common.HexToAddress(owner)] = m
	}
	if err := t.Audit(); err != nil {
		return nil, fmt.Errorf("restored state is inconsistent: %w", err)
	}
	return t, nil
}

// Filter selects events from the log. Zero values match everything.
type Filter struct {
	Kind      erc20.EventKind
	Address   *common.Address // matches From or To
	FromBlock uint64
	ToBlock   uint64 // 0 = latest
}

// Events returns the events matching f in emission order.
func (t *Token) Events(f Filter) []erc20.Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []erc20.Event
	for _, ev := range t.events {
		if f.Kind != "" && ev.Kind != f.Kind {
			continue
		}
		if f.Address != nil && ev.From != *f.Address && ev.To != *f.Address {
			continue
		}
		if ev.BlockNumber < f.FromBlock {
			continue
		}
		if f.ToBlock != 0 && ev.BlockNumber > f.ToBlock {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Accounts returns every address that ever held a balance, sorted.
func (t *Token) Accounts() []common.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]common.Address, 0, len(t.balances))
	for addr := range t.balances {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// SumBalances adds up every balance; used by invariant checks in tests.
func (t *Token) SumBalances() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sum := new(big.Int)
	for _, b := range t.balances {
		sum.Add(sum, b.ToBig())
	}
	return sum
}
