package binding

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/Mohsinsiddi/tkn/internal/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x627306090abaB3A6e1400e9345bC60c78a8BEf57")
	bob   = common.HexToAddress("0xf17f52151EbEF6C7334FAD080c5704D77216b732")
	carol = common.HexToAddress("0xC5fdf4076b8F3A5357c5E395ab970B5B54098Fef")
)

func newLedger(t *testing.T) *ledger.Token {
	t.Helper()
	tok, err := ledger.New("My Token", "TKN", 18, big.NewInt(1000), alice)
	require.NoError(t, err)
	return tok
}

// pollOnly hides WatchEvents so the store falls back to its ticker.
type pollOnly struct{ erc20.Token }

// failing reports err from every read.
type failing struct {
	erc20.Token
	err error
}

func (f failing) Name(context.Context) (string, error) { return "", f.err }

func waitFor(t *testing.T, ch <-chan Snapshot, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			require.True(t, ok, "subscription closed")
			if cond(snap) {
				return snap
			}
		case <-timeout:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestStartLoadsMetadataAndBalances(t *testing.T) {
	s := New(ledger.Bind(newLedger(t)), Options{Accounts: []common.Address{alice, bob}})
	assert.False(t, s.Snapshot().Initialized)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	snap := s.Snapshot()
	assert.True(t, snap.Initialized)
	assert.Equal(t, "My Token", snap.Name)
	assert.Equal(t, "TKN", snap.Symbol)
	assert.Equal(t, uint8(18), snap.Decimals)
	assert.Equal(t, int64(1000), snap.TotalSupply.Int64())
	assert.Equal(t, int64(1000), snap.Balances[alice].Int64())
	assert.Equal(t, int64(0), snap.Balances[bob].Int64())
	assert.Equal(t, []common.Address{alice, bob}, snap.Accounts())
	assert.Empty(t, snap.LastError)
}

func TestStartTwice(t *testing.T) {
	s := New(ledger.Bind(newLedger(t)), Options{})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
}

func TestSubscribeSeesLoadingThenUpdates(t *testing.T) {
	tok := newLedger(t)
	s := New(ledger.Bind(tok), Options{Accounts: []common.Address{alice, bob}})

	id, ch := s.Subscribe()
	first := <-ch
	assert.False(t, first.Initialized)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	// a write straight on the ledger reaches subscribers through its events
	_, err := tok.Transfer(alice, bob, big.NewInt(250))
	require.NoError(t, err)

	snap := waitFor(t, ch, func(s Snapshot) bool {
		return s.Initialized && s.Balances[bob] != nil && s.Balances[bob].Int64() == 250
	})
	assert.Equal(t, int64(750), snap.Balances[alice].Int64())

	s.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestWritePassThrough(t *testing.T) {
	s := New(ledger.Bind(newLedger(t)), Options{Accounts: []common.Address{alice, bob, carol}})

	_, err := s.Transfer(context.Background(), &erc20.TxOpts{From: alice}, bob, big.NewInt(1))
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	rcpt, err := s.Approve(context.Background(), &erc20.TxOpts{From: alice}, bob, big.NewInt(100))
	require.NoError(t, err)
	_, ok := rcpt.FindEvent(erc20.KindApproval)
	assert.True(t, ok)

	snap := s.Snapshot()
	require.Len(t, snap.Allowances, 1)
	assert.Equal(t, alice, snap.Allowances[0].Owner)
	assert.Equal(t, int64(100), snap.Allowances[0].Amount.Int64())

	_, err = s.TransferFrom(context.Background(), &erc20.TxOpts{From: bob}, alice, carol, big.NewInt(40))
	require.NoError(t, err)
	snap = s.Snapshot()
	assert.Equal(t, int64(40), snap.Balances[carol].Int64())
	assert.Equal(t, int64(60), snap.Allowances[0].Amount.Int64())

	_, err = s.Transfer(context.Background(), &erc20.TxOpts{From: carol}, bob, big.NewInt(41))
	assert.ErrorIs(t, err, erc20.ErrInsufficientBalance)
	assert.Equal(t, int64(40), s.Snapshot().Balances[carol].Int64())
}

func TestPollingSource(t *testing.T) {
	tok := newLedger(t)
	s := New(pollOnly{ledger.Bind(tok)}, Options{
		Accounts:     []common.Address{bob},
		PollInterval: 10 * time.Millisecond,
	})
	_, ch := s.Subscribe()
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	_, err := tok.Transfer(alice, bob, big.NewInt(7))
	require.NoError(t, err)
	waitFor(t, ch, func(s Snapshot) bool {
		return s.Balances[bob] != nil && s.Balances[bob].Int64() == 7
	})
}

func TestTrackEventAccounts(t *testing.T) {
	tok := newLedger(t)
	s := New(ledger.Bind(tok), Options{TrackEventAccounts: true})
	_, ch := s.Subscribe()
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	_, err := tok.Approve(alice, carol, big.NewInt(3))
	require.NoError(t, err)
	snap := waitFor(t, ch, func(s Snapshot) bool { return len(s.Allowances) == 1 })
	assert.Contains(t, snap.Balances, alice)
	assert.Contains(t, snap.Balances, carol)
}

func TestTrackSchedulesRefresh(t *testing.T) {
	s := New(ledger.Bind(newLedger(t)), Options{})
	_, ch := s.Subscribe()
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.Track(alice)
	s.TrackAllowance(alice, bob)
	waitFor(t, ch, func(s Snapshot) bool {
		return s.Balances[alice] != nil && len(s.Allowances) == 1
	})
}

func TestFailedLoadKeepsLoading(t *testing.T) {
	boom := errors.New("node down")
	s := New(failing{Token: ledger.Bind(newLedger(t)), err: boom}, Options{PollInterval: time.Hour})
	err := s.Start(context.Background())
	require.ErrorIs(t, err, boom)
	defer s.Stop()

	snap := s.Snapshot()
	assert.False(t, snap.Initialized)
	assert.Contains(t, snap.LastError, "node down")
}

func TestStopClosesSubscriptions(t *testing.T) {
	s := New(ledger.Bind(newLedger(t)), Options{})
	_, ch := s.Subscribe()
	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	for range ch {
	}
	s.Stop()
}

func TestReadsTrackAccounts(t *testing.T) {
	s := New(ledger.Bind(newLedger(t)), Options{})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	bal, err := s.BalanceOf(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal.Int64())
	amt, err := s.Allowance(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.Zero(t, amt.Sign())

	require.NoError(t, s.Refresh(context.Background()))
	snap := s.Snapshot()
	assert.Contains(t, snap.Balances, alice)
	require.Len(t, snap.Allowances, 1)
	assert.Equal(t, bob, snap.Allowances[0].Spender)
}
