package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/memo"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/pkg/logger"
)

// ErrNoSigner is returned by write calls on a read-only binding.
var ErrNoSigner = errors.New("contract bound without a signer")

// memoTuple mirrors the contract's Memo struct.
type memoTuple struct {
	From      common.Address
	Timestamp *big.Int
	Name      string
	Message   string
}

// TeaJar is a tea-jar contract bound to one address, ABI and signer.
type TeaJar struct {
	address      common.Address
	abi          abi.ABI
	backend      Backend
	contract     *bind.BoundContract
	signer       *bind.TransactOpts
	pollInterval time.Duration
	log          *logger.Logger
}

// Address returns the contract address.
func (t *TeaJar) Address() common.Address {
	return t.address
}

// Owner returns the account allowed to withdraw.
func (t *TeaJar) Owner(ctx context.Context) (common.Address, error) {
	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, MethodGetOwner); err != nil {
		return common.Address{}, &RemoteCallError{Method: MethodGetOwner, Err: err}
	}
	if len(out) == 0 {
		return common.Address{}, &RemoteCallError{Method: MethodGetOwner, Err: errors.New("empty result")}
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// Memos returns every memo stored on the contract in contract order.
func (t *TeaJar) Memos(ctx context.Context) ([]memo.Record, error) {
	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, MethodGetMemos); err != nil {
		return nil, &RemoteCallError{Method: MethodGetMemos, Err: err}
	}
	if len(out) == 0 {
		return nil, nil
	}

	tuples := *abi.ConvertType(out[0], new([]memoTuple)).(*[]memoTuple)
	records := make([]memo.Record, 0, len(tuples))
	for _, m := range tuples {
		records = append(records, memo.New(m.From.Hex(), bigToUnix(m.Timestamp), m.Name, m.Message))
	}
	return records, nil
}

// BuyTea sends a buyTea transaction carrying value wei. It returns once the
// node accepted the transaction; use WaitMined for confirmation.
func (t *TeaJar) BuyTea(ctx context.Context, name, message string, value *big.Int) (*types.Transaction, error) {
	opts, err := t.transactOpts(ctx, value)
	if err != nil {
		return nil, err
	}
	tx, err := t.contract.Transact(opts, MethodBuyTea, name, message)
	if err != nil {
		return nil, &RemoteCallError{Method: MethodBuyTea, Err: err}
	}
	return tx, nil
}

// Withdraw sends a withdraw transaction.
func (t *TeaJar) Withdraw(ctx context.Context) (*types.Transaction, error) {
	opts, err := t.transactOpts(ctx, nil)
	if err != nil {
		return nil, err
	}
	tx, err := t.contract.Transact(opts, MethodWithdraw)
	if err != nil {
		return nil, &RemoteCallError{Method: MethodWithdraw, Err: err}
	}
	return tx, nil
}

// WaitMined blocks until tx is included and fails when it reverted.
func (t *TeaJar) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, t.backend, tx)
	if err != nil {
		return nil, &RemoteCallError{Method: "waitMined", Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, &RemoteCallError{
			Method: "waitMined",
			Err:    fmt.Errorf("transaction %s reverted", tx.Hash().Hex()),
		}
	}
	return receipt, nil
}

func (t *TeaJar) transactOpts(ctx context.Context, value *big.Int) (*bind.TransactOpts, error) {
	if t.signer == nil {
		return nil, ErrNoSigner
	}
	opts := *t.signer
	opts.Context = ctx
	if value != nil {
		opts.Value = new(big.Int).Set(value)
	} else {
		opts.Value = nil
	}
	return &opts, nil
}

func bigToUnix(v *big.Int) int64 {
	if v == nil || !v.IsInt64() {
		return 0
	}
	return v.Int64()
}
