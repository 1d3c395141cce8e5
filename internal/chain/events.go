package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/memo"
)

// NewMemoEvent is the decoded NewMemo(from, timestamp, name, message) log.
type NewMemoEvent struct {
	From      common.Address
	Timestamp *big.Int
	Name      string
	Message   string
	Raw       types.Log
}

// ParseNewMemo decodes a NewMemo log.
func (t *TeaJar) ParseNewMemo(l types.Log) (*NewMemoEvent, error) {
	ev := new(NewMemoEvent)
	if err := t.contract.UnpackLog(ev, EventNewMemo, l); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", EventNewMemo, err)
	}
	ev.Raw = l
	return ev, nil
}

// Record converts the event into a memo record.
func (e *NewMemoEvent) Record() memo.Record {
	return memo.New(e.From.Hex(), bigToUnix(e.Timestamp), e.Name, e.Message)
}
