package controller

import (
	"context"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/event"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/events"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/memo"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/session"
)

// liveBuffer bounds how many NewMemo events may queue ahead of the consumer.
const liveBuffer = 64

// liveFeed is one live NewMemo subscription and its consumer goroutine.
type liveFeed struct {
	sub  event.Subscription
	done chan struct{}
	once sync.Once
}

// stop unsubscribes and waits for the consumer to exit.
func (f *liveFeed) stop() {
	f.once.Do(f.sub.Unsubscribe)
	<-f.done
}

// loadHistory fetches every stored memo and appends them as one batch. done
// is closed when the attempt finishes, successful or not, so held live events
// can be released.
func (c *Controller) loadHistory(ctx context.Context, gen uint64, h *session.Handle, done chan<- struct{}) {
	defer c.loaders.Done()
	defer close(done)

	records, err := h.Contract.Memos(ctx)
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	if c.generation == gen {
		c.historyLoading = false
	}
	c.mu.Unlock()

	if err != nil {
		c.cfg.Metrics.RecordRemoteError("getMemos")
		c.cfg.Events.Log(events.Event{
			Type:    events.EventHistoryFailed,
			Account: h.Account,
			Error:   err.Error(),
		})
		c.log.WithError(err).Error("failed to load memo history")
		return
	}

	added := c.cfg.Store.AppendBatch(records)
	c.cfg.Metrics.RecordMemos("history", added, len(records)-added)
	c.cfg.Events.Log(events.Event{
		Type:     events.EventHistoryLoaded,
		Account:  h.Account,
		Metadata: map[string]string{"fetched": strconv.Itoa(len(records)), "added": strconv.Itoa(added)},
	})
	c.log.WithField("fetched", len(records)).WithField("added", added).Info("memo history loaded")
}

// loadOwner fetches the contract owner once per session.
func (c *Controller) loadOwner(ctx context.Context, gen uint64, h *session.Handle) {
	defer c.loaders.Done()

	owner, err := h.Contract.Owner(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.cfg.Metrics.RecordRemoteError("getOwner")
		c.cfg.Events.Log(events.Event{Type: events.EventOwnerFailed, Account: h.Account, Error: err.Error()})
		c.log.WithError(err).Error("failed to load contract owner")
		return
	}

	c.setOwner(gen, owner.Hex())
	c.cfg.Events.Log(events.Event{Type: events.EventOwnerLoaded, Account: h.Account, Metadata: map[string]string{"owner": owner.Hex()}})
	c.log.WithField("owner", owner.Hex()).Debug("contract owner loaded")
}

func (c *Controller) setOwner(gen uint64, owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.owner = owner
	}
}

// subscribeLive registers the NewMemo subscription and starts its consumer.
// A failed subscription is logged; the session stays Ready without live
// updates.
func (c *Controller) subscribeLive(ctx context.Context, gen uint64, h *session.Handle, historyDone <-chan struct{}) {
	sink := make(chan memo.Record, liveBuffer)
	sub, err := h.Contract.WatchNewMemo(ctx, sink)
	if err != nil {
		c.cfg.Metrics.RecordRemoteError("subscribe")
		c.cfg.Events.Log(events.Event{Type: events.EventLiveFailed, Account: h.Account, Error: err.Error()})
		c.log.WithError(err).Error("failed to subscribe to NewMemo events")
		return
	}

	feed := &liveFeed{sub: sub, done: make(chan struct{})}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	c.live = feed
	c.liveSubscribed = true
	c.mu.Unlock()

	c.cfg.Metrics.AddLiveSubscriptions(1)
	c.cfg.Events.Log(events.Event{Type: events.EventLiveSubscribed, Account: h.Account})

	go c.consume(ctx, gen, feed, sink, historyDone)
}

// consume applies live memos in arrival order. Memos that arrive before the
// history batch is applied are held and appended after it.
func (c *Controller) consume(ctx context.Context, gen uint64, feed *liveFeed, sink <-chan memo.Record, historyDone <-chan struct{}) {
	defer close(feed.done)

	var held []memo.Record
	for {
		select {
		case <-ctx.Done():
			return

		case r := <-sink:
			if historyDone != nil {
				held = append(held, r)
				continue
			}
			c.appendLive(r)

		case <-historyDone:
			historyDone = nil
			for _, r := range held {
				c.appendLive(r)
			}
			held = nil

		case err, ok := <-feed.sub.Err():
			if !ok {
				return
			}
			c.mu.Lock()
			if c.generation == gen {
				c.liveSubscribed = false
			}
			c.mu.Unlock()
			c.cfg.Metrics.RecordRemoteError("subscription")
			c.cfg.Events.Log(events.Event{Type: events.EventLiveFailed, Error: err.Error()})
			c.log.WithError(err).Error("NewMemo subscription dropped")
			return
		}
	}
}

func (c *Controller) appendLive(r memo.Record) {
	if c.cfg.Store.AppendOne(r) {
		c.cfg.Metrics.RecordMemos("live", 1, 0)
		c.log.WithField("sender", r.Sender).Debug("live memo appended")
		return
	}
	c.cfg.Metrics.RecordMemos("live", 0, 1)
}
