package erc20

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// FormatUnits / ParseUnits
// ---------------------------------------------------------------------------

func TestFormatUnits(t *testing.T) {
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	assert.Equal(t, "1", FormatUnits(one, 18))
	assert.Equal(t, "1.5", FormatUnits(big.NewInt(1_500_000), 6))
	assert.Equal(t, "0.0000000000000001", FormatUnits(big.NewInt(100), 18))
	assert.Equal(t, "100", FormatUnits(big.NewInt(100), 0))
	assert.Equal(t, "0", FormatUnits(nil, 18))
}

func TestFormatUnitsFixed(t *testing.T) {
	assert.Equal(t, "1.5000", FormatUnitsFixed(big.NewInt(15), 1, 4))
	assert.Equal(t, "0.00", FormatUnitsFixed(nil, 18, 2))
}

func TestParseUnits(t *testing.T) {
	n, err := ParseUnits("1.5", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000), n.Int64())

	n, err = ParseUnits("100", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), n.Int64())
}

func TestParseUnitsTooPrecise(t *testing.T) {
	_, err := ParseUnits("0.001", 2)
	assert.Error(t, err)
}

func TestParseUnitsNegative(t *testing.T) {
	_, err := ParseUnits("-1", 18)
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestParseUnitsGarbage(t *testing.T) {
	_, err := ParseUnits("lots", 18)
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	cases := map[string]*big.Int{
		"100":     big.NewInt(100),
		"0x10":    big.NewInt(16),
		"1e18":    one,
		"1 ether": one,
		"10ether": new(big.Int).Mul(one, big.NewInt(10)),
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		assert.Equal(t, 0, got.Cmp(want), in)
	}
}

func TestParseAmountRejectsFraction(t *testing.T) {
	_, err := ParseAmount("1.5")
	assert.Error(t, err)
}

func TestParseAmountNegative(t *testing.T) {
	_, err := ParseAmount("-5")
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

// ---------------------------------------------------------------------------
// ErrorFromRevert
// ---------------------------------------------------------------------------

func TestErrorFromRevertBalance(t *testing.T) {
	err := ErrorFromRevert("execution reverted: Token balance too low")
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
}

func TestErrorFromRevertAllowance(t *testing.T) {
	err := ErrorFromRevert("execution reverted: Allowance too low")
	assert.True(t, errors.Is(err, ErrInsufficientAllowance))
	err = ErrorFromRevert("execution reverted: ERC20: insufficient allowance")
	assert.True(t, errors.Is(err, ErrInsufficientAllowance))
}

func TestErrorFromRevertUnknown(t *testing.T) {
	err := ErrorFromRevert("execution reverted: paused")
	assert.False(t, errors.Is(err, ErrInsufficientBalance))
	assert.False(t, errors.Is(err, ErrInsufficientAllowance))
	assert.EqualError(t, err, "execution reverted: paused")
}

// ---------------------------------------------------------------------------
// Event / Receipt
// ---------------------------------------------------------------------------

func TestEventString(t *testing.T) {
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")
	ev := Event{Kind: KindApproval, From: a, To: b, Tokens: big.NewInt(5)}
	assert.Contains(t, ev.String(), "Approval(tokenOwner=")
	assert.Equal(t, a, ev.Owner())
	assert.Equal(t, b, ev.Spender())

	ev.Kind = KindTransfer
	assert.Contains(t, ev.String(), "tokens=5")
}

func TestReceiptFindEvent(t *testing.T) {
	r := &Receipt{Events: []Event{{Kind: KindApproval}, {Kind: KindTransfer, Tokens: big.NewInt(1)}}}
	ev, ok := r.FindEvent(KindTransfer)
	require.True(t, ok)
	assert.Equal(t, int64(1), ev.Tokens.Int64())

	var nilReceipt *Receipt
	_, ok = nilReceipt.FindEvent(KindTransfer)
	assert.False(t, ok)
}

func TestEventTopics(t *testing.T) {
	assert.Equal(t, "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef", TransferTopic.Hex())
	assert.Equal(t, "0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925", ApprovalTopic.Hex())
}

func TestEventToLog(t *testing.T) {
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")
	token := common.HexToAddress("0xaa")
	lg := Event{Kind: KindApproval, From: a, To: b, Tokens: big.NewInt(100), BlockNumber: 3}.ToLog(token)

	assert.Equal(t, token, lg.Address)
	require.Len(t, lg.Topics, 3)
	assert.Equal(t, ApprovalTopic, lg.Topics[0])
	assert.Equal(t, common.BytesToHash(a.Bytes()), lg.Topics[1])
	assert.Len(t, lg.Data, 32)
	assert.Equal(t, byte(100), lg.Data[31])
	assert.Equal(t, uint64(3), lg.BlockNumber)
}
