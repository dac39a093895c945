package erc20

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/crypto/sha3"
)

// Event signatures as they appear in topic[0] of an EVM log.
var (
	TransferTopic = topic("Transfer(address,address,uint256)")
	ApprovalTopic = topic("Approval(address,address,uint256)")
)

func topic(sig string) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(sig))
	return common.BytesToHash(h.Sum(nil))
}

// ToLog renders the event as the log a deployed token contract at addr
// would emit: both addresses indexed, tokens in the data word.
func (e Event) ToLog(addr common.Address) types.Log {
	sig := TransferTopic
	if e.Kind == KindApproval {
		sig = ApprovalTopic
	}
	tokens := e.Tokens
	if tokens == nil {
		tokens = new(big.Int)
	}
	return types.Log{
		Address: addr,
		Topics: []common.Hash{
			sig,
			common.BytesToHash(e.From.Bytes()),
			common.BytesToHash(e.To.Bytes()),
		},
		Data:        common.LeftPadBytes(tokens.Bytes(), 32),
		BlockNumber: e.BlockNumber,
		TxHash:      e.TxHash,
		Index:       e.Index,
	}
}
