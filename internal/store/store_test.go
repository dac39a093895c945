package store

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/Mohsinsiddi/tkn/internal/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x627306090abaB3A6e1400e9345bC60c78a8BEf57")
	bob   = common.HexToAddress("0xf17f52151EbEF6C7334FAD080c5704D77216b732")
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sub", "tkn.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newToken(t *testing.T) *ledger.Token {
	t.Helper()
	tok, err := ledger.New("My Token", "TKN", 18, big.NewInt(1000), alice)
	require.NoError(t, err)
	return tok
}

func TestSaveAndLoad(t *testing.T) {
	db := openTestDB(t)
	tok := newToken(t)
	_, err := tok.Transfer(alice, bob, big.NewInt(300))
	require.NoError(t, err)
	_, err = tok.Approve(bob, alice, big.NewInt(50))
	require.NoError(t, err)

	require.NoError(t, db.Save("demo", tok))
	assert.True(t, db.Exists("demo"))

	got, err := db.Load("demo")
	require.NoError(t, err)
	assert.Equal(t, "My Token", got.Name())
	assert.Equal(t, int64(700), got.BalanceOf(alice).Int64())
	assert.Equal(t, int64(300), got.BalanceOf(bob).Int64())
	assert.Equal(t, int64(50), got.Allowance(bob, alice).Int64())
	assert.Equal(t, tok.BlockNumber(), got.BlockNumber())

	evs := got.Events(ledger.Filter{})
	require.Len(t, evs, 2)
	assert.Equal(t, erc20.KindTransfer, evs[0].Kind)
	assert.Equal(t, erc20.KindApproval, evs[1].Kind)
	assert.Equal(t, int64(300), evs[0].Tokens.Int64())
}

func TestSaveReplacesEvents(t *testing.T) {
	db := openTestDB(t)
	tok := newToken(t)
	_, err := tok.Transfer(alice, bob, big.NewInt(1))
	require.NoError(t, err)
	require.NoError(t, db.Save("demo", tok))

	_, err = tok.Transfer(alice, bob, big.NewInt(2))
	require.NoError(t, err)
	require.NoError(t, db.Save("demo", tok))

	got, err := db.Load("demo")
	require.NoError(t, err)
	evs := got.Events(ledger.Filter{})
	require.Len(t, evs, 2)
	assert.Equal(t, int64(2), evs[1].Tokens.Int64())
}

func TestLoadMissing(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Load("nope")
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.False(t, db.Exists("nope"))
}

func TestSaveRejectsEmptyID(t *testing.T) {
	db := openTestDB(t)
	assert.ErrorIs(t, db.Save("", newToken(t)), ErrInvalidID)
}

func TestListAndDelete(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Save("b", newToken(t)))
	tok := newToken(t)
	_, err := tok.Transfer(alice, bob, big.NewInt(5))
	require.NoError(t, err)
	require.NoError(t, db.Save("a", tok))

	list, err := db.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "TKN", list[0].Symbol)
	assert.Equal(t, 1, list[0].Events)
	assert.Equal(t, 0, list[1].Events)

	require.NoError(t, db.Delete("a"))
	assert.ErrorIs(t, db.Delete("a"), ErrTokenNotFound)
	list, err = db.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tkn.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Save("demo", newToken(t)))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.Load("demo")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.BalanceOf(alice).Int64())
}
