package config

import "time"

// Timeouts for talking to a node.
const (
	RPCTimeout       = 15 * time.Second // single read call
	ReceiptTimeout   = 2 * time.Minute  // waiting for a write to be mined
	LocalReceiptPoll = 200 * time.Millisecond
)

// Token defaults for deploy and harness scenarios.
const (
	DefaultTokenName     = "My Token"
	DefaultTokenSymbol   = "TKN"
	DefaultTokenDecimals = 18
	DefaultInitialSupply = "1e18"
)
