package chain_test

import (
	"context"
	"encoding/json"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/chain"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/memo"
)

func newMemoLog(t *testing.T, from common.Address, ts int64, name, message string, block uint64) types.Log {
	t.Helper()
	ev := chain.DefaultABI().Events[chain.EventNewMemo]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(ts), name, message)
	require.NoError(t, err)
	return types.Log{
		Address:     testContract,
		Topics:      []common.Hash{ev.ID, common.BytesToHash(from.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BytesToHash([]byte{byte(block)}),
		BlockHash:   common.BytesToHash([]byte{0xb, byte(block)}),
	}
}

func TestParseNewMemo(t *testing.T) {
	jar := newTestClient(t, newFakeNode()).Bind(testContract, chain.DefaultABI(), nil)
	from := common.HexToAddress("0xBB")

	ev, err := jar.ParseNewMemo(newMemoLog(t, from, 200, "Cara", "Thanks", 1))
	require.NoError(t, err)

	assert.Equal(t, from, ev.From)
	assert.Equal(t, memo.Record{Sender: from.Hex(), Name: "Cara", Message: "Thanks", Timestamp: 200}, ev.Record())
}

func TestParseNewMemo_WrongEvent(t *testing.T) {
	jar := newTestClient(t, newFakeNode()).Bind(testContract, chain.DefaultABI(), nil)

	l := newMemoLog(t, common.HexToAddress("0xBB"), 1, "a", "b", 1)
	l.Topics[0] = common.HexToHash("0x01")

	_, err := jar.ParseNewMemo(l)
	assert.Error(t, err)
}

func TestWatchNewMemo_PollsWithoutNotifications(t *testing.T) {
	var head atomic.Uint64
	head.Store(16)

	node := newFakeNode()
	node.handle("eth_blockNumber", func([]json.RawMessage) (interface{}, *rpcError) {
		return hexutil.Uint64(head.Load()), nil
	})

	first := newMemoLog(t, common.HexToAddress("0xBB"), 200, "Cara", "Thanks", 17)
	removed := newMemoLog(t, common.HexToAddress("0xCC"), 201, "Gone", "Reorged", 17)
	removed.Removed = true
	node.handle("eth_getLogs", func([]json.RawMessage) (interface{}, *rpcError) {
		return []types.Log{first, removed}, nil
	})

	jar := newTestClient(t, node).Bind(testContract, chain.DefaultABI(), nil)

	sink := make(chan memo.Record, 4)
	sub, err := jar.WatchNewMemo(context.Background(), sink)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	head.Store(17)

	select {
	case got := <-sink:
		assert.Equal(t, "Cara", got.Name)
		assert.Equal(t, int64(200), got.Timestamp)
	case <-time.After(5 * time.Second):
		t.Fatal("no memo delivered")
	}

	select {
	case extra := <-sink:
		t.Fatalf("unexpected memo %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, 1, node.count("eth_getLogs"))
}

func TestWatchNewMemo_UnsubscribeStopsPolling(t *testing.T) {
	node := newFakeNode()
	node.handle("eth_blockNumber", func([]json.RawMessage) (interface{}, *rpcError) {
		return hexutil.Uint64(1), nil
	})

	jar := newTestClient(t, node).Bind(testContract, chain.DefaultABI(), nil)

	sub, err := jar.WatchNewMemo(context.Background(), make(chan memo.Record))
	require.NoError(t, err)

	sub.Unsubscribe()
	select {
	case <-sub.Err():
	case <-time.After(time.Second):
		t.Fatal("error channel not closed after unsubscribe")
	}

	calls := node.count("eth_blockNumber")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, node.count("eth_blockNumber"))
}
