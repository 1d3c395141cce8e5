package chain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/memo"
)

// WatchNewMemo delivers every NewMemo emitted from now on to sink, in the order
// the node reports them. It uses a log subscription when the endpoint supports
// notifications and polls eth_getLogs otherwise. Unsubscribe stops delivery.
func (t *TeaJar) WatchNewMemo(ctx context.Context, sink chan<- memo.Record) (event.Subscription, error) {
	logs, sub, err := t.contract.WatchLogs(&bind.WatchOpts{Context: ctx}, EventNewMemo)
	if err != nil {
		if !errors.Is(err, rpc.ErrNotificationsUnsupported) {
			return nil, &RemoteCallError{Method: "eth_subscribe", Err: err}
		}
		t.log.WithField("interval", t.pollInterval).Info("node has no notifications, polling for memos")
		return t.pollNewMemo(ctx, sink)
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case l := <-logs:
				if !t.forward(l, sink, quit) {
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

// pollNewMemo is the polling counterpart of the log subscription. It starts at
// the block after the current head.
func (t *TeaJar) pollNewMemo(ctx context.Context, sink chan<- memo.Record) (event.Subscription, error) {
	head, err := t.backend.BlockNumber(ctx)
	if err != nil {
		return nil, &RemoteCallError{Method: "eth_blockNumber", Err: err}
	}

	next := head + 1
	query := ethereum.FilterQuery{
		Addresses: []common.Address{t.address},
		Topics:    [][]common.Hash{{t.abi.Events[EventNewMemo].ID}},
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		ticker := time.NewTicker(t.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-quit:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}

			head, err := t.backend.BlockNumber(ctx)
			if err != nil {
				t.log.WithError(err).Warn("poll block number failed")
				continue
			}
			if head < next {
				continue
			}

			query.FromBlock = new(big.Int).SetUint64(next)
			query.ToBlock = new(big.Int).SetUint64(head)
			found, err := t.backend.FilterLogs(ctx, query)
			if err != nil {
				t.log.WithError(err).WithField("from", next).WithField("to", head).Warn("poll logs failed")
				continue
			}
			for _, l := range found {
				if !t.forward(l, sink, quit) {
					return nil
				}
			}
			next = head + 1
		}
	}), nil
}

// forward decodes l and hands it to sink. It reports false when quit fired
// while waiting on the sink.
func (t *TeaJar) forward(l types.Log, sink chan<- memo.Record, quit <-chan struct{}) bool {
	if l.Removed {
		return true
	}
	ev, err := t.ParseNewMemo(l)
	if err != nil {
		t.log.WithError(err).WithField("tx", l.TxHash.Hex()).Warn("skipping undecodable log")
		return true
	}
	select {
	case sink <- ev.Record():
		return true
	case <-quit:
		return false
	}
}
