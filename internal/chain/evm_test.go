package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// rpcMock creates a test HTTP server that serves a fixed JSON-RPC response
// per method. Pass method→result pairs; any unknown method returns an RPC error.
func rpcMock(t *testing.T, responses map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			ID     int    `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if result, ok := responses[req.Method]; ok {
			json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result":  result,
			})
		} else {
			json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
				"jsonrpc": "2.0",
				"id":      req.ID,
				"error":   map[string]interface{}{"code": -32601, "message": "method not found"},
			})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// rpcErrorServer creates a test HTTP server that always returns a JSON-RPC error.
func rpcErrorServer(t *testing.T, rpcErr map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID int `json:"id"`
		}
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   rpcErr,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// rpcBadJSON creates a server that returns malformed JSON.
func rpcBadJSON(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{not valid json`)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv
}

func revertData(t *testing.T, reason string) string {
	t.Helper()
	strType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: strType}}.Pack(reason)
	require.NoError(t, err)
	return "0x08c379a0" + hex.EncodeToString(packed)
}

var ctx = context.Background()

// ---------------------------------------------------------------------------
// parseBigHex / decodeHex
// ---------------------------------------------------------------------------

func TestParseBigHexValid(t *testing.T) {
	n, ok := parseBigHex("0x64")
	require.True(t, ok)
	assert.Equal(t, int64(100), n.Int64())
}

func TestParseBigHexLargeValue(t *testing.T) {
	n, ok := parseBigHex("0xDE0B6B3A7640000")
	require.True(t, ok)
	expected := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	assert.Equal(t, expected, n)
}

func TestParseBigHexInvalid(t *testing.T) {
	_, ok := parseBigHex("xyz")
	assert.False(t, ok)
	_, ok = parseBigHex("")
	assert.False(t, ok)
}

func TestDecodeHexOddLength(t *testing.T) {
	b, err := decodeHex("0x1")
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, b)
}

// ---------------------------------------------------------------------------
// simple getters
// ---------------------------------------------------------------------------

func TestBlockNumberAndChainID(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{
		"eth_blockNumber": "0x10",
		"eth_chainId":     "0x539",
	})
	c := NewEVMClient(srv.URL)

	bn, err := c.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), bn)

	id, err := c.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1337), id.Int64())
}

func TestPendingNonceAndGasPrice(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{
		"eth_getTransactionCount": "0x7",
		"eth_gasPrice":            "0x77359400",
	})
	c := NewEVMClient(srv.URL)

	n, err := c.PendingNonce(ctx, common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)

	gp, err := c.GasPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000_000), gp.Int64())
}

func TestAccounts(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{
		"eth_accounts": []string{
			"0x0000000000000000000000000000000000000001",
			"0x0000000000000000000000000000000000000002",
		},
	})
	accts, err := NewEVMClient(srv.URL).Accounts(ctx)
	require.NoError(t, err)
	require.Len(t, accts, 2)
	assert.Equal(t, common.HexToAddress("0x02"), accts[1])
}

func TestGetCodeEmpty(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{"eth_getCode": "0x"})
	code, err := NewEVMClient(srv.URL).GetCode(ctx, common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.Empty(t, code)
}

func TestCallReturnsBytes(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{"eth_call": "0x0000000000000000000000000000000000000000000000000000000000000012"})
	to := common.HexToAddress("0x01")
	out, err := NewEVMClient(srv.URL).Call(ctx, CallMsg{To: &to, Data: []byte{0x31, 0x3c, 0xe5, 0x67}})
	require.NoError(t, err)
	require.Len(t, out, 32)
	assert.Equal(t, byte(18), out[31])
}

// ---------------------------------------------------------------------------
// errors
// ---------------------------------------------------------------------------

func TestRPCErrorSurfaced(t *testing.T) {
	srv := rpcErrorServer(t, map[string]interface{}{"code": -32000, "message": "nonce too low"})
	_, err := NewEVMClient(srv.URL).BlockNumber(ctx)
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32000, rpcErr.Code)
	assert.Contains(t, err.Error(), "nonce too low")
}

func TestRevertReasonFromData(t *testing.T) {
	srv := rpcErrorServer(t, map[string]interface{}{
		"code":    3,
		"message": "execution reverted",
		"data":    revertData(t, "Token balance too low"),
	})
	_, err := NewEVMClient(srv.URL).EstimateGas(ctx, CallMsg{})
	var rev *RevertError
	require.True(t, errors.As(err, &rev))
	assert.Equal(t, "Token balance too low", rev.Reason)
}

func TestRevertReasonFromGanacheMessage(t *testing.T) {
	srv := rpcErrorServer(t, map[string]interface{}{
		"code":    -32000,
		"message": "VM Exception while processing transaction: revert Allowance too low",
	})
	_, err := NewEVMClient(srv.URL).Call(ctx, CallMsg{})
	var rev *RevertError
	require.True(t, errors.As(err, &rev))
	assert.Equal(t, "Allowance too low", rev.Reason)
}

func TestExtractRevertReasonGeth(t *testing.T) {
	assert.Equal(t, "Token balance too low", extractRevertReason("execution reverted: Token balance too low"))
	assert.Equal(t, "boom", extractRevertReason("boom"))
}

func TestBadJSON(t *testing.T) {
	_, err := NewEVMClient(rpcBadJSON(t).URL).BlockNumber(ctx)
	assert.Error(t, err)
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	_, err := NewEVMClient(srv.URL).BlockNumber(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

// ---------------------------------------------------------------------------
// receipts and logs
// ---------------------------------------------------------------------------

var transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

func sampleLog() map[string]interface{} {
	return map[string]interface{}{
		"address": "0x00000000000000000000000000000000000000aa",
		"topics": []string{
			transferTopic,
			"0x0000000000000000000000000000000000000000000000000000000000000001",
			"0x0000000000000000000000000000000000000000000000000000000000000002",
		},
		"data":            "0x0000000000000000000000000000000000000000000000000000000000000064",
		"blockNumber":     "0x5",
		"transactionHash": "0xabc0000000000000000000000000000000000000000000000000000000000000",
		"logIndex":        "0x0",
	}
}

func TestTransactionReceiptDecodesLogs(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{
		"eth_getTransactionReceipt": map[string]interface{}{
			"status":          "0x1",
			"blockNumber":     "0x5",
			"gasUsed":         "0x8fc2",
			"contractAddress": nil,
			"logs":            []interface{}{sampleLog()},
		},
	})
	r, err := NewEVMClient(srv.URL).TransactionReceipt(ctx, common.HexToHash("0xabc"))
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, uint64(1), r.Status)
	assert.Equal(t, uint64(5), r.BlockNumber)
	require.Len(t, r.Logs, 1)
	assert.Equal(t, common.HexToHash(transferTopic), r.Logs[0].Topics[0])
	assert.Equal(t, byte(100), r.Logs[0].Data[31])
}

func TestTransactionReceiptPending(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{"eth_getTransactionReceipt": nil})
	r, err := NewEVMClient(srv.URL).TransactionReceipt(ctx, common.HexToHash("0xabc"))
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestWaitForReceiptReverted(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{
		"eth_getTransactionReceipt": map[string]interface{}{"status": "0x0", "blockNumber": "0x2"},
	})
	r, err := NewEVMClient(srv.URL).WaitForReceipt(ctx, common.HexToHash("0x1"))
	require.Error(t, err)
	require.NotNil(t, r)
	assert.Equal(t, uint64(0), r.Status)
}

func TestWaitForReceiptTimeout(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{"eth_getTransactionReceipt": nil})
	c := NewEVMClient(srv.URL)
	c.PollInterval = 10 * time.Millisecond

	tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err := c.WaitForReceipt(tctx, common.HexToHash("0x1"))
	assert.ErrorIs(t, err, ErrReceiptTimeout)
}

func TestWaitForReceiptTimeoutDuringRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	tctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err := NewEVMClient(srv.URL).WaitForReceipt(tctx, common.HexToHash("0x1"))
	assert.ErrorIs(t, err, ErrReceiptTimeout)
}

func TestFilterLogs(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{"eth_getLogs": []interface{}{sampleLog(), sampleLog()}})
	logs, err := NewEVMClient(srv.URL).FilterLogs(ctx, FilterQuery{
		Address: common.HexToAddress("0xaa"),
		Topics:  [][]common.Hash{{common.HexToHash(transferTopic)}},
	})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
	assert.Equal(t, uint64(5), logs[1].BlockNumber)
}

// ---------------------------------------------------------------------------
// gas
// ---------------------------------------------------------------------------

func TestSuggestFeesLondon(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{
		"eth_getBlockByNumber":     map[string]interface{}{"baseFeePerGas": "0x64"},
		"eth_maxPriorityFeePerGas": "0xa",
	})
	fees, err := NewEVMClient(srv.URL).SuggestFees(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), fees.BaseFee.Int64())
	assert.Equal(t, int64(10), fees.GasTipCap.Int64())
	assert.Equal(t, int64(210), fees.GasFeeCap.Int64())
}

func TestSuggestFeesLegacy(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{
		"eth_getBlockByNumber": map[string]interface{}{"number": "0x1"},
		"eth_gasPrice":         "0x3b9aca00",
	})
	fees, err := NewEVMClient(srv.URL).SuggestFees(ctx)
	require.NoError(t, err)
	assert.Nil(t, fees.BaseFee)
	assert.Equal(t, fees.GasTipCap, fees.GasFeeCap)
	assert.InDelta(t, 1.0, WeiToGwei(fees.GasFeeCap), 1e-9)
}

func TestWithBuffer(t *testing.T) {
	assert.Equal(t, uint64(120), WithBuffer(100, 20))
}

// ---------------------------------------------------------------------------
// Ping
// ---------------------------------------------------------------------------

func TestPing(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{"eth_blockNumber": "0x2a"})
	latency, bn, err := NewEVMClient(srv.URL).Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), bn)
	assert.Positive(t, int64(latency))
}

func TestPingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	_, _, err := NewEVMClient(url).Ping(ctx)
	assert.Error(t, err)
}
