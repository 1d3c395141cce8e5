package chain_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/chain"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/memo"
)

type memoTuple struct {
	From      common.Address
	Timestamp *big.Int
	Name      string
	Message   string
}

func ethCallReturning(t *testing.T, method string, values ...interface{}) rpcHandler {
	t.Helper()
	parsed := chain.DefaultABI()
	packed, err := parsed.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	return func([]json.RawMessage) (interface{}, *rpcError) {
		return hexutil.Bytes(packed), nil
	}
}

func TestOwner(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	node := newFakeNode()
	node.handle("eth_call", ethCallReturning(t, chain.MethodGetOwner, owner))

	jar := newTestClient(t, node).Bind(testContract, chain.DefaultABI(), nil)

	got, err := jar.Owner(context.Background())
	require.NoError(t, err)
	assert.Equal(t, owner, got)
}

func TestOwner_RemoteError(t *testing.T) {
	node := newFakeNode()
	node.handle("eth_call", func([]json.RawMessage) (interface{}, *rpcError) {
		return nil, &rpcError{Code: -32000, Message: "execution reverted"}
	})

	jar := newTestClient(t, node).Bind(testContract, chain.DefaultABI(), nil)

	_, err := jar.Owner(context.Background())
	require.Error(t, err)

	var remoteErr *chain.RemoteCallError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, chain.MethodGetOwner, remoteErr.Method)
}

func TestMemos(t *testing.T) {
	node := newFakeNode()
	node.handle("eth_call", ethCallReturning(t, chain.MethodGetMemos, []memoTuple{
		{From: common.HexToAddress("0xAA"), Timestamp: big.NewInt(100), Name: "Bob", Message: "Nice!"},
		{From: common.HexToAddress("0xBB"), Timestamp: big.NewInt(150), Name: "", Message: ""},
	}))

	jar := newTestClient(t, node).Bind(testContract, chain.DefaultABI(), nil)

	got, err := jar.Memos(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, memo.Record{
		Sender:    common.HexToAddress("0xAA").Hex(),
		Name:      "Bob",
		Message:   "Nice!",
		Timestamp: 100,
	}, got[0])
	assert.Equal(t, memo.DefaultName, got[1].Name)
	assert.Equal(t, memo.DefaultMessage, got[1].Message)
}

func TestMemos_Empty(t *testing.T) {
	node := newFakeNode()
	node.handle("eth_call", ethCallReturning(t, chain.MethodGetMemos, []memoTuple{}))

	jar := newTestClient(t, node).Bind(testContract, chain.DefaultABI(), nil)

	got, err := jar.Memos(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func newSigner(t *testing.T) *bind.TransactOpts {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(1337))
	require.NoError(t, err)
	opts.Nonce = big.NewInt(0)
	opts.GasPrice = big.NewInt(1)
	opts.GasLimit = 100000
	return opts
}

func captureRawTx(t *testing.T, node *fakeNode) <-chan *types.Transaction {
	t.Helper()
	sent := make(chan *types.Transaction, 1)
	node.handle("eth_sendRawTransaction", func(params []json.RawMessage) (interface{}, *rpcError) {
		var raw string
		require.NoError(t, json.Unmarshal(params[0], &raw))
		tx := new(types.Transaction)
		require.NoError(t, tx.UnmarshalBinary(hexutil.MustDecode(raw)))
		sent <- tx
		return tx.Hash(), nil
	})
	return sent
}

func TestBuyTea(t *testing.T) {
	node := newFakeNode()
	sent := captureRawTx(t, node)

	jar := newTestClient(t, node).Bind(testContract, chain.DefaultABI(), newSigner(t))

	value, err := chain.ParseEther("0.001")
	require.NoError(t, err)

	tx, err := jar.BuyTea(context.Background(), "Bob", "Nice!", value)
	require.NoError(t, err)

	onWire := <-sent
	assert.Equal(t, tx.Hash(), onWire.Hash())
	assert.Equal(t, testContract, *onWire.To())
	assert.Equal(t, 0, onWire.Value().Cmp(value))

	method := chain.DefaultABI().Methods[chain.MethodBuyTea]
	assert.Equal(t, method.ID, onWire.Data()[:4])
	args, err := method.Inputs.Unpack(onWire.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Bob", "Nice!"}, args)
}

func TestWithdraw(t *testing.T) {
	node := newFakeNode()
	sent := captureRawTx(t, node)

	jar := newTestClient(t, node).Bind(testContract, chain.DefaultABI(), newSigner(t))

	_, err := jar.Withdraw(context.Background())
	require.NoError(t, err)

	onWire := <-sent
	assert.Equal(t, 0, onWire.Value().Sign())
	assert.Equal(t, chain.DefaultABI().Methods[chain.MethodWithdraw].ID, onWire.Data())
}

func TestWrite_WithoutSigner(t *testing.T) {
	jar := newTestClient(t, newFakeNode()).Bind(testContract, chain.DefaultABI(), nil)

	_, err := jar.Withdraw(context.Background())
	assert.ErrorIs(t, err, chain.ErrNoSigner)
}

func receiptHandler(t *testing.T, status uint64) rpcHandler {
	t.Helper()
	return func(params []json.RawMessage) (interface{}, *rpcError) {
		var hash common.Hash
		require.NoError(t, json.Unmarshal(params[0], &hash))
		return &types.Receipt{
			Status:      status,
			TxHash:      hash,
			Logs:        []*types.Log{},
			BlockNumber: big.NewInt(5),
			GasUsed:     21000,
		}, nil
	}
}

func TestWaitMined(t *testing.T) {
	node := newFakeNode()
	node.handle("eth_getTransactionReceipt", receiptHandler(t, types.ReceiptStatusSuccessful))

	jar := newTestClient(t, node).Bind(testContract, chain.DefaultABI(), nil)
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, To: &testContract, Gas: 21000, GasPrice: big.NewInt(1)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	receipt, err := jar.WaitMined(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), receipt.TxHash)
}

func TestWaitMined_Reverted(t *testing.T) {
	node := newFakeNode()
	node.handle("eth_getTransactionReceipt", receiptHandler(t, types.ReceiptStatusFailed))

	jar := newTestClient(t, node).Bind(testContract, chain.DefaultABI(), nil)
	tx := types.NewTx(&types.LegacyTx{Nonce: 2, To: &testContract, Gas: 21000, GasPrice: big.NewInt(1)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	receipt, err := jar.WaitMined(ctx, tx)
	require.Error(t, err)
	require.NotNil(t, receipt)

	var remoteErr *chain.RemoteCallError
	assert.True(t, errors.As(err, &remoteErr))
}

func TestChainID(t *testing.T) {
	node := newFakeNode()
	node.handle("eth_chainId", func([]json.RawMessage) (interface{}, *rpcError) {
		return hexutil.Uint64(1337), nil
	})

	id, err := newTestClient(t, node).ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1337), id.Int64())
}
