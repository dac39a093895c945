// Package devchain is an in-memory chain for the ERC20Token contract. It
// implements contract.Backend by decoding each call or signed transaction
// and applying it to a ledger.Token, so the full client path (ABI packing,
// EIP-1559 signing, receipts, log decoding) runs without a node.
//
// The chain does not execute EVM code. It only accepts creation code that
// starts with CreationCode, as produced from Artifact().
package devchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/Mohsinsiddi/tkn/internal/chain"
	"github.com/Mohsinsiddi/tkn/internal/contract"
	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/Mohsinsiddi/tkn/internal/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultChainID matches the development network.
const DefaultChainID = 1337

// CreationCode marks creation code the chain knows how to deploy.
var CreationCode = []byte{0x60, 0x80, 0x60, 0x40, 0x52}

var errUnknownCode = errors.New("devchain: unrecognised creation code")

var _ contract.Backend = (*Chain)(nil)

// Chain holds deployed tokens, nonces, receipts and logs.
type Chain struct {
	mu       sync.Mutex
	chainID  *big.Int
	tokens   map[common.Address]*ledger.Token
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*chain.Receipt
	logs     []types.Log
	sent     int
}

// New returns an empty chain.
func New(chainID int64) *Chain {
	return &Chain{
		chainID:  big.NewInt(chainID),
		tokens:   make(map[common.Address]*ledger.Token),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*chain.Receipt),
	}
}

// Artifact returns an ERC20Token artifact deployable on this chain.
func Artifact() *contract.Artifact {
	return &contract.Artifact{
		ContractName: "ERC20Token",
		ABI:          contract.ERC20ABI,
		Bytecode:     append([]byte(nil), CreationCode...),
	}
}

// Sent counts accepted transactions.
func (c *Chain) Sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// Ledger returns the ledger behind a deployed token.
func (c *Chain) Ledger(addr common.Address) (*ledger.Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tokens[addr]
	return t, ok
}

func (c *Chain) ChainID(context.Context) (*big.Int, error) { return new(big.Int).Set(c.chainID), nil }

func (c *Chain) SuggestFees(context.Context) (*chain.Fees, error) {
	return &chain.Fees{BaseFee: big.NewInt(1), GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(3)}, nil
}

func (c *Chain) PendingNonce(_ context.Context, addr common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[addr], nil
}

func (c *Chain) GetCode(_ context.Context, addr common.Address) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tokens[addr]; ok {
		return append([]byte(nil), CreationCode...), nil
	}
	return nil, nil
}

// Call serves the read-only ERC-20 methods.
func (c *Chain) Call(_ context.Context, msg chain.CallMsg) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.To == nil {
		return nil, nil
	}
	tok, ok := c.tokens[*msg.To]
	if !ok {
		return nil, nil
	}
	method, args, err := decode(msg.Data)
	if err != nil {
		return nil, err
	}
	var out interface{}
	switch method {
	case "name":
		out = tok.Name()
	case "symbol":
		out = tok.Symbol()
	case "decimals":
		out = tok.Decimals()
	case "totalSupply":
		out = tok.TotalSupply()
	case "balanceOf":
		out = tok.BalanceOf(args[0].(common.Address))
	case "allowance":
		out = tok.Allowance(args[0].(common.Address), args[1].(common.Address))
	default:
		return nil, fmt.Errorf("eth_call of %s not supported", method)
	}
	return contract.ERC20ABI.Methods[method].Outputs.Pack(out)
}

// EstimateGas reverts with the contract's require messages.
func (c *Chain) EstimateGas(_ context.Context, msg chain.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.To == nil {
		if !bytes.HasPrefix(msg.Data, CreationCode) {
			return 0, errUnknownCode
		}
		return 1_000_000, nil
	}
	tok, ok := c.tokens[*msg.To]
	if !ok {
		return 21_000, nil
	}
	method, args, err := decode(msg.Data)
	if err != nil {
		return 0, err
	}
	switch method {
	case "transfer":
		if tok.BalanceOf(msg.From).Cmp(args[1].(*big.Int)) < 0 {
			return 0, revert(erc20.ErrInsufficientBalance.Error())
		}
	case "transferFrom":
		from, amount := args[0].(common.Address), args[2].(*big.Int)
		if tok.Allowance(from, msg.From).Cmp(amount) < 0 {
			return 0, revert(erc20.ErrInsufficientAllowance.Error())
		}
		if tok.BalanceOf(from).Cmp(amount) < 0 {
			return 0, revert(erc20.ErrInsufficientBalance.Error())
		}
	}
	return 50_000, nil
}

// SendRawTransaction recovers the sender, checks the nonce and applies the
// transaction immediately; the receipt is available right away.
func (c *Chain) SendRawTransaction(_ context.Context, raw []byte) (common.Hash, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}
	from, err := types.Sender(types.NewLondonSigner(c.chainID), &tx)
	if err != nil {
		return common.Hash{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tx.Nonce() != c.nonces[from] {
		return common.Hash{}, &chain.RPCError{Code: -32000, Message: fmt.Sprintf("invalid nonce %d, expected %d", tx.Nonce(), c.nonces[from])}
	}

	receipt := &chain.Receipt{TxHash: tx.Hash(), Status: 1, GasUsed: 50_000}
	if tx.To() == nil {
		addr, tok, err := c.deploy(from, tx.Nonce(), tx.Data())
		if err != nil {
			return common.Hash{}, err
		}
		receipt.ContractAddress = addr
		receipt.BlockNumber = tok.BlockNumber()
	} else if err := c.execute(*tx.To(), from, tx.Data(), receipt); err != nil {
		return common.Hash{}, err
	}
	c.nonces[from]++
	c.sent++
	c.receipts[tx.Hash()] = receipt
	return tx.Hash(), nil
}

func (c *Chain) WaitForReceipt(_ context.Context, hash common.Hash) (*chain.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[hash]
	if !ok {
		return nil, chain.ErrReceiptTimeout
	}
	if r.Status == 0 {
		return r, fmt.Errorf("transaction %s reverted", hash.Hex())
	}
	return r, nil
}

func (c *Chain) FilterLogs(_ context.Context, q chain.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []types.Log
	for _, lg := range c.logs {
		if lg.Address != q.Address || lg.BlockNumber < q.FromBlock {
			continue
		}
		if q.ToBlock != nil && lg.BlockNumber > *q.ToBlock {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func (c *Chain) deploy(from common.Address, nonce uint64, data []byte) (common.Address, *ledger.Token, error) {
	if !bytes.HasPrefix(data, CreationCode) {
		return common.Address{}, nil, errUnknownCode
	}
	args, err := contract.ERC20ABI.Constructor.Inputs.Unpack(data[len(CreationCode):])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("constructor args: %w", err)
	}
	tok, err := ledger.New(args[0].(string), args[1].(string), args[2].(uint8), args[3].(*big.Int), from)
	if err != nil {
		return common.Address{}, nil, err
	}
	addr := crypto.CreateAddress(from, nonce)
	c.tokens[addr] = tok
	return addr, tok, nil
}

func (c *Chain) execute(to, from common.Address, data []byte, receipt *chain.Receipt) error {
	tok, ok := c.tokens[to]
	if !ok {
		return fmt.Errorf("no contract at %s", to.Hex())
	}
	method, args, err := decode(data)
	if err != nil {
		return err
	}
	var rc *erc20.Receipt
	switch method {
	case "transfer":
		rc, err = tok.Transfer(from, args[0].(common.Address), args[1].(*big.Int))
	case "approve":
		rc, err = tok.Approve(from, args[0].(common.Address), args[1].(*big.Int))
	case "transferFrom":
		rc, err = tok.TransferFrom(from, args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int))
	default:
		return fmt.Errorf("transaction to %s not supported", method)
	}
	receipt.BlockNumber = tok.BlockNumber()
	if err != nil {
		receipt.Status = 0
		return nil
	}
	for _, ev := range rc.Events {
		lg := ev.ToLog(to)
		lg.TxHash = receipt.TxHash
		c.logs = append(c.logs, lg)
		receipt.Logs = append(receipt.Logs, lg)
	}
	return nil
}

func decode(data []byte) (string, []interface{}, error) {
	if len(data) < 4 {
		return "", nil, errors.New("calldata too short")
	}
	method, err := contract.ERC20ABI.MethodById(data[:4])
	if err != nil {
		return "", nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return "", nil, err
	}
	return method.Name, args, nil
}

func revert(reason string) error {
	return &chain.RevertError{Reason: reason, RPC: &chain.RPCError{Code: 3, Message: "execution reverted: " + reason}}
}
