package erc20

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatUnits renders a raw token amount with the given number of decimals,
// e.g. FormatUnits(1500000000000000000, 18) == "1.5".
func FormatUnits(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}

// FormatUnitsFixed is FormatUnits padded to exactly places fractional digits.
func FormatUnitsFixed(raw *big.Int, decimals uint8, places int32) string {
	if raw == nil {
		raw = new(big.Int)
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).StringFixed(places)
}

// ParseUnits converts a human amount ("1.5", "100") into raw units. Amounts
// with more fractional digits than decimals are rejected.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}
	return shifted.BigInt(), nil
}

// ParseAmount parses a raw amount. It accepts plain integers ("100"),
// scientific notation ("1e18") and an "ether" suffix ("1 ether" == 1e18),
// mirroring web3.utils.toWei.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutSuffix(s, "ether"); ok {
		return ParseUnits(strings.TrimSpace(rest), 18)
	}
	if n, ok := new(big.Int).SetString(s, 0); ok {
		if n.Sign() < 0 {
			return nil, ErrNegativeAmount
		}
		return n, nil
	}
	return ParseUnits(s, 0)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
