package chain

import (
	"context"
	"math/big"
)

// Fees holds the EIP-1559 fee caps to put on a dynamic-fee transaction.
type Fees struct {
	BaseFee   *big.Int // nil on pre-London chains
	GasTipCap *big.Int
	GasFeeCap *big.Int
}

// BaseFee returns the base fee of the latest block, or nil when the chain
// does not report one.
func (c *EVMClient) BaseFee(ctx context.Context) (*big.Int, error) {
	var rb *struct {
		BaseFeePerGas string `json:"baseFeePerGas"`
	}
	if err := c.call(ctx, &rb, "eth_getBlockByNumber", "latest", false); err != nil {
		return nil, err
	}
	if rb == nil || rb.BaseFeePerGas == "" {
		return nil, nil
	}
	bf, ok := parseBigHex(rb.BaseFeePerGas)
	if !ok {
		return nil, nil
	}
	return bf, nil
}

// SuggestFees returns fee caps of tip + 2*baseFee. On legacy chains the gas
// price is used for both caps.
func (c *EVMClient) SuggestFees(ctx context.Context) (*Fees, error) {
	baseFee, err := c.BaseFee(ctx)
	if err != nil {
		return nil, err
	}
	if baseFee == nil {
		gp, err := c.GasPrice(ctx)
		if err != nil {
			return nil, err
		}
		return &Fees{GasTipCap: gp, GasFeeCap: new(big.Int).Set(gp)}, nil
	}
	tip, err := c.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, err
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)
	return &Fees{BaseFee: baseFee, GasTipCap: tip, GasFeeCap: feeCap}, nil
}

// WithBuffer adds pct percent to a gas estimate.
func WithBuffer(gas uint64, pct uint64) uint64 {
	return gas + gas*pct/100
}

// WeiToGwei converts a Wei value to Gwei as float64.
func WeiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		new(big.Float).SetFloat64(1e9),
	).Float64()
	return f
}
