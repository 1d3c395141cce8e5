package controller

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/chain"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/events"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/memo"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/wallet"
)

// SubmitTip sends buyTea with the fixed tip amount and waits for the receipt.
// Blank name or message are replaced by the defaults before sending. Failures
// are logged and returned; nothing is retried.
func (c *Controller) SubmitTip(ctx context.Context, name, message string) (*types.Receipt, error) {
	h, _ := c.current()
	if h == nil {
		return nil, ErrNotReady
	}

	name = memo.NameOrDefault(name)
	message = memo.MessageOrDefault(message)
	log := c.log.WithField("account", h.Account).WithField("amount", chain.FormatEther(c.cfg.TipAmount))

	tx, err := h.Contract.BuyTea(ctx, name, message, c.cfg.TipAmount)
	if err != nil {
		c.txFailed("tip", events.EventTipFailed, h.Account, "", err)
		log.WithError(err).Error("failed to send tip")
		return nil, fmt.Errorf("buy tea: %w", err)
	}

	hash := tx.Hash().Hex()
	c.cfg.Events.Log(events.Event{Type: events.EventTipSent, Account: h.Account, TxHash: hash})
	log.WithField("tx", hash).Info("tip sent, waiting for confirmation")

	start := time.Now()
	receipt, err := h.Contract.WaitMined(ctx, tx)
	if err != nil {
		c.txFailed("tip", events.EventTipFailed, h.Account, hash, err)
		log.WithError(err).WithField("tx", hash).Error("tip not confirmed")
		return nil, fmt.Errorf("buy tea %s: %w", hash, err)
	}

	c.cfg.Metrics.RecordTransaction("tip", "confirmed", time.Since(start))
	c.cfg.Events.Log(events.Event{
		Type:     events.EventTipConfirmed,
		Account:  h.Account,
		TxHash:   hash,
		Metadata: map[string]string{"block": receipt.BlockNumber.String()},
	})
	log.WithField("tx", hash).WithField("block", receipt.BlockNumber.String()).Info("tip confirmed")
	return receipt, nil
}

// Withdraw sends withdraw and waits for the receipt. The connected account
// must match the loaded owner case-insensitively; otherwise, or while the
// owner is unknown, ErrNotOwner is returned without contacting the contract.
func (c *Controller) Withdraw(ctx context.Context) (*types.Receipt, error) {
	h, _ := c.current()
	if h == nil {
		return nil, ErrNotReady
	}

	c.mu.RLock()
	owner := c.owner
	c.mu.RUnlock()

	log := c.log.WithField("account", h.Account).WithField("owner", owner)

	if !wallet.SameAccount(h.Account, owner) {
		c.cfg.Metrics.RecordTransaction("withdraw", "denied", 0)
		c.cfg.Events.Log(events.Event{
			Type:     events.EventWithdrawDenied,
			Severity: events.SeverityWarning,
			Account:  h.Account,
			Message:  "only the owner can withdraw",
		})
		log.Warn("withdraw refused, account is not the owner")
		return nil, ErrNotOwner
	}

	tx, err := h.Contract.Withdraw(ctx)
	if err != nil {
		c.txFailed("withdraw", events.EventWithdrawFailed, h.Account, "", err)
		log.WithError(err).Error("failed to send withdraw")
		return nil, fmt.Errorf("withdraw: %w", err)
	}

	hash := tx.Hash().Hex()
	c.cfg.Events.Log(events.Event{Type: events.EventWithdrawSent, Account: h.Account, TxHash: hash})
	log.WithField("tx", hash).Info("withdraw sent, waiting for confirmation")

	start := time.Now()
	receipt, err := h.Contract.WaitMined(ctx, tx)
	if err != nil {
		c.txFailed("withdraw", events.EventWithdrawFailed, h.Account, hash, err)
		log.WithError(err).WithField("tx", hash).Error("withdraw not confirmed")
		return nil, fmt.Errorf("withdraw %s: %w", hash, err)
	}

	c.cfg.Metrics.RecordTransaction("withdraw", "confirmed", time.Since(start))
	c.cfg.Events.Log(events.Event{Type: events.EventWithdrawDone, Account: h.Account, TxHash: hash})
	log.WithField("tx", hash).Info("withdraw confirmed")
	return receipt, nil
}

// Resync re-fetches the memo history and merges records the store has not
// seen. If the owner is still unknown it is fetched again. It returns the
// number of records added.
func (c *Controller) Resync(ctx context.Context) (int, error) {
	h, gen := c.current()
	if h == nil {
		return 0, ErrNotReady
	}

	c.mu.RLock()
	ownerKnown := c.owner != ""
	c.mu.RUnlock()
	if !ownerKnown {
		if owner, err := h.Contract.Owner(ctx); err == nil {
			c.setOwner(gen, owner.Hex())
		} else {
			c.cfg.Metrics.RecordRemoteError("getOwner")
			c.log.WithError(err).Warn("owner still unavailable")
		}
	}

	records, err := h.Contract.Memos(ctx)
	if err != nil {
		c.cfg.Metrics.RecordRemoteError("getMemos")
		c.log.WithError(err).Error("resync failed")
		return 0, fmt.Errorf("resync: %w", err)
	}

	added := c.cfg.Store.AppendBatch(records)
	c.cfg.Metrics.RecordMemos("history", added, len(records)-added)
	c.cfg.Events.Log(events.Event{
		Type:     events.EventResyncCompleted,
		Account:  h.Account,
		Metadata: map[string]string{"fetched": strconv.Itoa(len(records)), "added": strconv.Itoa(added)},
	})
	if added > 0 {
		c.log.WithField("added", added).Info("resync merged missing memos")
	}
	return added, nil
}

func (c *Controller) txFailed(action string, typ events.EventType, account, hash string, err error) {
	c.cfg.Metrics.RecordTransaction(action, "failed", 0)
	c.cfg.Events.Log(events.Event{Type: typ, Account: account, TxHash: hash, Error: err.Error()})
}
