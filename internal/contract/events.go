package contract

import (
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ParseTransfer decodes a Transfer log.
func ParseTransfer(lg types.Log) (erc20.Event, error) {
	return parseEvent(lg, erc20.KindTransfer, erc20.TransferTopic)
}

// ParseApproval decodes an Approval log.
func ParseApproval(lg types.Log) (erc20.Event, error) {
	return parseEvent(lg, erc20.KindApproval, erc20.ApprovalTopic)
}

// DecodeLogs decodes every Transfer and Approval log, in order, skipping
// logs of other events.
func DecodeLogs(logs []types.Log) ([]erc20.Event, error) {
	var events []erc20.Event
	for _, lg := range logs {
		if len(lg.Topics) == 0 {
			continue
		}
		var (
			ev  erc20.Event
			err error
		)
		switch lg.Topics[0] {
		case erc20.TransferTopic:
			ev, err = ParseTransfer(lg)
		case erc20.ApprovalTopic:
			ev, err = ParseApproval(lg)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseEvent(lg types.Log, kind erc20.EventKind, sig common.Hash) (erc20.Event, error) {
	if len(lg.Topics) != 3 || lg.Topics[0] != sig {
		return erc20.Event{}, fmt.Errorf("log is not a %s event", kind)
	}
	values, err := ERC20ABI.Unpack(string(kind), lg.Data)
	if err != nil {
		return erc20.Event{}, fmt.Errorf("decoding %s data: %w", kind, err)
	}
	tokens, ok := values[0].(*big.Int)
	if !ok {
		return erc20.Event{}, fmt.Errorf("decoding %s data: unexpected %T", kind, values[0])
	}
	return erc20.Event{
		Kind:        kind,
		From:        common.BytesToAddress(lg.Topics[1].Bytes()),
		To:          common.BytesToAddress(lg.Topics[2].Bytes()),
		Tokens:      tokens,
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		Index:       lg.Index,
	}, nil
}
