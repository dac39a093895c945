package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-resty/resty/v2"
)

// ErrReceiptTimeout is returned by WaitForReceipt when the transaction is
// not mined before the context expires.
var ErrReceiptTimeout = errors.New("transaction not mined in time")

// EVMClient is a minimal JSON-RPC client for EVM chains.
type EVMClient struct {
	url    string
	client *resty.Client
	nextID atomic.Int64

	// PollInterval is how often WaitForReceipt checks for a receipt.
	PollInterval time.Duration
}

// CallMsg describes an eth_call / eth_estimateGas request.
type CallMsg struct {
	From  common.Address
	To    *common.Address // nil for contract creation
	Data  []byte
	Value *big.Int
}

// Receipt is the on-chain receipt of a mined transaction.
type Receipt struct {
	TxHash          common.Hash
	Status          uint64 // 1 = success, 0 = reverted
	BlockNumber     uint64
	GasUsed         uint64
	ContractAddress common.Address // set when a contract was deployed
	Logs            []types.Log
}

// NewEVMClient creates a new EVM JSON-RPC client pointed at url.
func NewEVMClient(url string) *EVMClient {
	return &EVMClient{
		url: url,
		client: resty.New().
			SetTimeout(15*time.Second).
			SetHeader("Content-Type", "application/json"),
		PollInterval: 2 * time.Second,
	}
}

// URL returns the endpoint this client talks to.
func (c *EVMClient) URL() string { return c.url }

// BlockNumber returns the latest block number.
func (c *EVMClient) BlockNumber(ctx context.Context) (uint64, error) {
	var hexStr string
	if err := c.call(ctx, &hexStr, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return parseUint64Hex(hexStr, "block number")
}

// ChainID returns the chain's ID.
func (c *EVMClient) ChainID(ctx context.Context) (*big.Int, error) {
	var hexStr string
	if err := c.call(ctx, &hexStr, "eth_chainId"); err != nil {
		return nil, err
	}
	id, ok := parseBigHex(hexStr)
	if !ok {
		return nil, fmt.Errorf("could not parse chain id: %s", hexStr)
	}
	return id, nil
}

// PendingNonce returns the transaction count including queued transactions.
func (c *EVMClient) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	var hexStr string
	if err := c.call(ctx, &hexStr, "eth_getTransactionCount", addr.Hex(), "pending"); err != nil {
		return 0, err
	}
	return parseUint64Hex(hexStr, "nonce")
}

// GasPrice returns the current legacy gas price.
func (c *EVMClient) GasPrice(ctx context.Context) (*big.Int, error) {
	var hexStr string
	if err := c.call(ctx, &hexStr, "eth_gasPrice"); err != nil {
		return nil, err
	}
	gp, ok := parseBigHex(hexStr)
	if !ok {
		return nil, fmt.Errorf("could not parse gas price: %s", hexStr)
	}
	return gp, nil
}

// SuggestGasTipCap returns eth_maxPriorityFeePerGas, falling back to the gas
// price on nodes that do not implement it (older Ganache releases).
func (c *EVMClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var hexStr string
	if err := c.call(ctx, &hexStr, "eth_maxPriorityFeePerGas"); err == nil {
		if tip, ok := parseBigHex(hexStr); ok {
			return tip, nil
		}
	}
	return c.GasPrice(ctx)
}

// EstimateGas estimates gas for msg.
func (c *EVMClient) EstimateGas(ctx context.Context, msg CallMsg) (uint64, error) {
	var hexStr string
	if err := c.call(ctx, &hexStr, "eth_estimateGas", toCallArg(msg)); err != nil {
		return 0, err
	}
	return parseUint64Hex(hexStr, "gas estimate")
}

// Call executes msg with eth_call against the latest block. A revert is
// reported as a *RevertError.
func (c *EVMClient) Call(ctx context.Context, msg CallMsg) ([]byte, error) {
	var hexStr string
	if err := c.call(ctx, &hexStr, "eth_call", toCallArg(msg), "latest"); err != nil {
		return nil, err
	}
	return decodeHex(hexStr)
}

// SendRawTransaction broadcasts a signed transaction and returns its hash.
func (c *EVMClient) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var hash string
	if err := c.call(ctx, &hash, "eth_sendRawTransaction", "0x"+hex.EncodeToString(raw)); err != nil {
		return common.Hash{}, err
	}
	return common.HexToHash(hash), nil
}

// GetCode returns the bytecode at an address. Empty means an EOA.
func (c *EVMClient) GetCode(ctx context.Context, addr common.Address) ([]byte, error) {
	var hexStr string
	if err := c.call(ctx, &hexStr, "eth_getCode", addr.Hex(), "latest"); err != nil {
		return nil, err
	}
	return decodeHex(hexStr)
}

// Accounts returns the node-managed accounts (Ganache exposes ten).
func (c *EVMClient) Accounts(ctx context.Context) ([]common.Address, error) {
	var raw []string
	if err := c.call(ctx, &raw, "eth_accounts"); err != nil {
		return nil, err
	}
	out := make([]common.Address, 0, len(raw))
	for _, a := range raw {
		out = append(out, common.HexToAddress(a))
	}
	return out, nil
}

// TransactionReceipt fetches the receipt for hash. Returns nil, nil while the
// transaction is still pending.
func (c *EVMClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var r *rpcReceipt
	if err := c.call(ctx, &r, "eth_getTransactionReceipt", hash.Hex()); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}
	return r.toReceipt(hash)
}

// WaitForReceipt polls until the transaction is mined or ctx expires. A
// reverted transaction returns its receipt together with an error.
func (c *EVMClient) WaitForReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.TransactionReceipt(ctx, hash)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
			}
			return nil, err
		}
		if receipt != nil {
			if receipt.Status == 0 {
				return receipt, fmt.Errorf("transaction reverted (hash: %s)", hash.Hex())
			}
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
		case <-ticker.C:
		}
	}
}

// FilterQuery selects logs for eth_getLogs.
type FilterQuery struct {
	Address   common.Address
	Topics    [][]common.Hash
	FromBlock uint64
	ToBlock   *uint64 // nil = latest
}

// FilterLogs queries event logs matching q.
func (c *EVMClient) FilterLogs(ctx context.Context, q FilterQuery) ([]types.Log, error) {
	filter := map[string]interface{}{
		"address":   q.Address.Hex(),
		"fromBlock": fmt.Sprintf("0x%x", q.FromBlock),
		"toBlock":   "latest",
	}
	if q.ToBlock != nil {
		filter["toBlock"] = fmt.Sprintf("0x%x", *q.ToBlock)
	}
	if len(q.Topics) > 0 {
		topics := make([]interface{}, len(q.Topics))
		for i, alts := range q.Topics {
			switch len(alts) {
			case 0:
				topics[i] = nil
			case 1:
				topics[i] = alts[0].Hex()
			default:
				hs := make([]string, len(alts))
				for j, h := range alts {
					hs[j] = h.Hex()
				}
				topics[i] = hs
			}
		}
		filter["topics"] = topics
	}

	var raw []rpcLog
	if err := c.call(ctx, &raw, "eth_getLogs", filter); err != nil {
		return nil, err
	}
	logs := make([]types.Log, 0, len(raw))
	for _, l := range raw {
		lg, err := l.toLog()
		if err != nil {
			return nil, fmt.Errorf("parsing logs: %w", err)
		}
		logs = append(logs, lg)
	}
	return logs, nil
}

// Ping tests the RPC endpoint and returns latency + block number.
func (c *EVMClient) Ping(ctx context.Context) (latency time.Duration, blockNum uint64, err error) {
	start := time.Now()
	blockNum, err = c.BlockNumber(ctx)
	return time.Since(start), blockNum, err
}

// --- internal JSON-RPC plumbing ---

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// RevertError is returned when a call or gas estimation reverts.
type RevertError struct {
	Reason string
	RPC    *RPCError
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

func (e *RevertError) Unwrap() error { return e.RPC }

func (c *EVMClient) call(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("RPC request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("RPC request failed: HTTP %d", resp.StatusCode())
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(resp.Body(), &rpcResp); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if rpcResp.Error != nil {
		if reason, ok := revertReason(rpcResp.Error); ok {
			return &RevertError{Reason: reason, RPC: rpcResp.Error}
		}
		return rpcResp.Error
	}
	if out == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("parsing result: %w", err)
	}
	return nil
}

func toCallArg(msg CallMsg) map[string]string {
	arg := map[string]string{}
	if msg.From != (common.Address{}) {
		arg["from"] = msg.From.Hex()
	}
	if msg.To != nil {
		arg["to"] = msg.To.Hex()
	}
	if len(msg.Data) > 0 {
		arg["data"] = "0x" + hex.EncodeToString(msg.Data)
	}
	if msg.Value != nil && msg.Value.Sign() > 0 {
		arg["value"] = "0x" + msg.Value.Text(16)
	}
	return arg
}

// revertReason recognises revert errors from geth ("execution reverted: x",
// ABI-encoded Error(string) in data) and Ganache ("VM Exception while
// processing transaction: revert x").
func revertReason(e *RPCError) (string, bool) {
	if !strings.Contains(strings.ToLower(e.Message), "revert") {
		return "", false
	}
	if len(e.Data) > 0 {
		var dataHex string
		if json.Unmarshal(e.Data, &dataHex) == nil {
			if data, err := decodeHex(dataHex); err == nil {
				if reason, err := abi.UnpackRevert(data); err == nil {
					return reason, true
				}
			}
		}
	}
	return extractRevertReason(e.Message), true
}

// extractRevertReason tries to pull the revert reason out of an RPC error message.
func extractRevertReason(errMsg string) string {
	for _, marker := range []string{"execution reverted:", "revert "} {
		if idx := strings.Index(errMsg, marker); idx >= 0 {
			return strings.TrimSpace(errMsg[idx+len(marker):])
		}
	}
	return errMsg
}

type rpcLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
}

func (l rpcLog) toLog() (types.Log, error) {
	data, err := decodeHex(l.Data)
	if err != nil {
		return types.Log{}, err
	}
	lg := types.Log{
		Address: common.HexToAddress(l.Address),
		Data:    data,
		TxHash:  common.HexToHash(l.TxHash),
	}
	for _, t := range l.Topics {
		lg.Topics = append(lg.Topics, common.HexToHash(t))
	}
	if bn, ok := parseBigHex(l.BlockNumber); ok {
		lg.BlockNumber = bn.Uint64()
	}
	if idx, ok := parseBigHex(l.LogIndex); ok {
		lg.Index = uint(idx.Uint64())
	}
	return lg, nil
}

type rpcReceipt struct {
	Status          string   `json:"status"`
	BlockNumber     string   `json:"blockNumber"`
	GasUsed         string   `json:"gasUsed"`
	ContractAddress string   `json:"contractAddress"`
	Logs            []rpcLog `json:"logs"`
}

func (r *rpcReceipt) toReceipt(hash common.Hash) (*Receipt, error) {
	receipt := &Receipt{TxHash: hash}
	if r.ContractAddress != "" {
		receipt.ContractAddress = common.HexToAddress(r.ContractAddress)
	}
	if s, ok := parseBigHex(r.Status); ok {
		receipt.Status = s.Uint64()
	}
	if bn, ok := parseBigHex(r.BlockNumber); ok {
		receipt.BlockNumber = bn.Uint64()
	}
	if gu, ok := parseBigHex(r.GasUsed); ok {
		receipt.GasUsed = gu.Uint64()
	}
	for _, l := range r.Logs {
		lg, err := l.toLog()
		if err != nil {
			return nil, fmt.Errorf("parsing receipt logs: %w", err)
		}
		receipt.Logs = append(receipt.Logs, lg)
	}
	return receipt, nil
}

// --- hex helpers ---

func parseBigHex(s string) (*big.Int, bool) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, false
	}
	return new(big.Int).SetString(s, 16)
}

func parseUint64Hex(s, what string) (uint64, error) {
	n, ok := parseBigHex(s)
	if !ok {
		return 0, fmt.Errorf("could not parse %s: %s", what, s)
	}
	return n.Uint64(), nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding hex: %w", err)
	}
	return b, nil
}
