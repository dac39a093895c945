package ui

import (
	"math/big"
	"testing"
	"time"

	"github.com/Mohsinsiddi/tkn/internal/binding"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x627306090abaB3A6e1400e9345bC60c78a8BEf57")
	bob   = common.HexToAddress("0xf17f52151EbEF6C7334FAD080c5704D77216b732")
)

func loadedSnapshot() binding.Snapshot {
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return binding.Snapshot{
		Initialized: true,
		Name:        "My Token",
		Symbol:      "TKN",
		Decimals:    18,
		TotalSupply: one,
		Balances: map[common.Address]*big.Int{
			alice: new(big.Int).Sub(one, big.NewInt(100)),
			bob:   big.NewInt(100),
		},
		Allowances: []binding.Allowance{{Pair: binding.Pair{Owner: alice, Spender: bob}, Amount: big.NewInt(5)}},
		UpdatedAt:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestTokenModelShowsLoadingFirst(t *testing.T) {
	m := NewTokenModel("development", make(chan binding.Snapshot), nil)
	assert.Contains(t, m.View(), LoadingText)
	assert.NotContains(t, m.View(), "Total supply")
}

func TestTokenModelRendersSnapshot(t *testing.T) {
	ch := make(chan binding.Snapshot, 1)
	m := NewTokenModel("development", ch, map[common.Address]string{alice: "accounts[0]"})

	ch <- loadedSnapshot()
	msg := m.next()()
	updated, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	m = updated.(TokenModel)

	view := m.View()
	assert.Contains(t, view, "My Token")
	assert.Contains(t, view, "Total supply")
	assert.Contains(t, view, "1 TKN")
	assert.Contains(t, view, "accounts[0]")
	assert.Contains(t, view, "0.9999999999999999")
	assert.Contains(t, view, "0.0000000000000001")
	assert.Contains(t, view, "Allowance")
	assert.NotContains(t, view, LoadingText)
}

func TestTokenModelShowsLoadError(t *testing.T) {
	ch := make(chan binding.Snapshot)
	m := NewTokenModel("sepolia", ch, nil)
	updated, _ := m.Update(snapshotMsg(binding.Snapshot{LastError: "dial tcp: connection refused"}))
	view := updated.(TokenModel).View()
	assert.Contains(t, view, LoadingText)
	assert.Contains(t, view, "connection refused")
}

func TestTokenModelQuits(t *testing.T) {
	ch := make(chan binding.Snapshot)
	close(ch)
	m := NewTokenModel("x", ch, nil)
	msg := m.next()()
	assert.IsType(t, closedMsg{}, msg)

	updated, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	assert.Empty(t, updated.(TokenModel).View())

	updated, cmd = NewTokenModel("x", ch, nil).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Empty(t, updated.(TokenModel).View())
}

func TestSpinStopsOnceLoaded(t *testing.T) {
	m := NewTokenModel("x", make(chan binding.Snapshot), nil)
	_, cmd := m.Update(spinMsg{})
	assert.NotNil(t, cmd)

	m.snap = loadedSnapshot()
	_, cmd = m.Update(spinMsg{})
	assert.Nil(t, cmd)
}

func TestTokenWalletWithoutAccounts(t *testing.T) {
	s := loadedSnapshot()
	s.Balances = nil
	s.Allowances = nil
	assert.Contains(t, TokenWallet(s, nil), "no accounts tracked")
	assert.Equal(t, Meta(LoadingText), TokenMetadata(binding.Snapshot{}))
}
