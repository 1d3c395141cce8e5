// Package controller drives the tea-jar client session: it connects the
// wallet, binds the contract, loads memo history, follows live NewMemo events
// and performs the user's tip and withdraw actions.
package controller

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/events"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/memo"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/metrics"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/session"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/wallet"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/pkg/logger"
)

var (
	// ErrNotReady is returned by user actions while no session is bound.
	ErrNotReady = errors.New("controller: session not ready")
	// ErrNotOwner is returned by Withdraw when the connected account is not
	// the contract owner. No transaction is sent.
	ErrNotOwner = errors.New("controller: connected account is not the owner")
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Ready
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	default:
		return "disconnected"
	}
}

// Status is a point-in-time view of the controller.
type Status struct {
	State             string `json:"state"`
	Account           string `json:"account,omitempty"`
	Owner             string `json:"owner,omitempty"`
	IsOwner           bool   `json:"is_owner"`
	ChainID           string `json:"chain_id,omitempty"`
	Contract          string `json:"contract,omitempty"`
	HistoricalLoading bool   `json:"historical_loading"`
	LiveSubscribed    bool   `json:"live_subscribed"`
	MemoCount         int    `json:"memo_count"`
}

// Config holds controller dependencies. Session, Gate and Store are required.
type Config struct {
	Session   *session.Session
	Gate      *wallet.Gate
	Store     *memo.Store
	TipAmount *big.Int
	Events    events.Log
	Metrics   *metrics.Collector
	Logger    *logger.Logger
}

// DefaultTipAmount is 0.001 ether in wei.
var DefaultTipAmount = big.NewInt(1_000_000_000_000_000)

// Controller owns the session lifecycle and the memo store.
type Controller struct {
	cfg Config
	log *logger.Logger

	// lifecycle serializes Connect, Disconnect and account-change rebuilds.
	lifecycle sync.Mutex

	mu             sync.RWMutex
	state          State
	handle         *session.Handle
	owner          string
	historyLoading bool
	liveSubscribed bool
	generation     uint64
	cancel         context.CancelFunc
	live           *liveFeed
	unwatch        func()

	loaders sync.WaitGroup
}

// New creates a disconnected controller.
func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("controller")
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard{}
	}
	if cfg.TipAmount == nil || cfg.TipAmount.Sign() <= 0 {
		cfg.TipAmount = new(big.Int).Set(DefaultTipAmount)
	}
	if cfg.Store == nil {
		cfg.Store = memo.NewStore()
	}
	c := &Controller{cfg: cfg, log: cfg.Logger}
	c.cfg.Metrics.SetSessionState(int(Disconnected))
	return c
}

// Store returns the memo store.
func (c *Controller) Store() *memo.Store {
	return c.cfg.Store
}

// TipAmount returns the fixed amount sent with every tip.
func (c *Controller) TipAmount() *big.Int {
	return new(big.Int).Set(c.cfg.TipAmount)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.RLock()
	st := Status{
		State:             c.state.String(),
		Owner:             c.owner,
		HistoricalLoading: c.historyLoading,
		LiveSubscribed:    c.liveSubscribed,
	}
	if c.handle != nil {
		st.Account = c.handle.Account
		st.ChainID = c.handle.ChainID.String()
		st.Contract = c.handle.Address.Hex()
	}
	c.mu.RUnlock()

	st.IsOwner = wallet.SameAccount(st.Account, st.Owner)
	st.MemoCount = c.cfg.Store.Len()
	return st
}

// Connect requests wallet authorization and binds a new session. Any existing
// session is torn down first. On failure the controller is left Disconnected
// and the error is returned.
func (c *Controller) Connect(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.watchAccounts()
	c.teardown()
	c.setState(Connecting)
	c.cfg.Events.Log(events.Event{Type: events.EventConnecting})

	h, err := c.cfg.Session.Initialize(ctx)
	if err != nil {
		c.setState(Disconnected)
		c.cfg.Metrics.RecordConnect(connectResult(err))
		c.cfg.Events.Log(events.Event{
			Type:    events.EventConnectFailed,
			Message: "wallet connection failed",
			Error:   err.Error(),
		})
		c.log.WithError(err).Warn("connect failed")
		return err
	}

	c.cfg.Metrics.RecordConnect("success")
	c.enterReady(h)
	return nil
}

// Disconnect tears down the session and forgets the account.
func (c *Controller) Disconnect() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.teardown() {
		c.cfg.Events.Log(events.Event{Type: events.EventTeardown, Message: "disconnected"})
	}
	c.cfg.Gate.Clear()
}

// Close disconnects and stops listening for account changes.
func (c *Controller) Close() {
	c.mu.Lock()
	unwatch := c.unwatch
	c.unwatch = nil
	c.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
	c.Disconnect()
}

func (c *Controller) enterReady(h *session.Handle) {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.state = Ready
	c.handle = h
	c.owner = ""
	c.historyLoading = true
	c.cancel = cancel
	c.mu.Unlock()

	c.cfg.Metrics.SetSessionState(int(Ready))
	c.cfg.Events.Log(events.Event{
		Type:     events.EventReady,
		Account:  h.Account,
		Metadata: map[string]string{"chain_id": h.ChainID.String(), "contract": h.Address.Hex()},
	})
	c.log.WithField("account", h.Account).Info("session ready")

	historyDone := make(chan struct{})
	c.loaders.Add(2)
	go c.loadHistory(ctx, gen, h, historyDone)
	go c.loadOwner(ctx, gen, h)
	c.subscribeLive(ctx, gen, h, historyDone)
}

// teardown releases the live subscription, waits for its consumer and the
// loaders to exit, and destroys the handle. It reports whether a session or
// connection attempt was active. Callers hold c.lifecycle.
func (c *Controller) teardown() bool {
	c.mu.Lock()
	active := c.state != Disconnected || c.handle != nil
	c.generation++
	cancel := c.cancel
	live := c.live
	c.cancel = nil
	c.live = nil
	c.state = Disconnected
	c.handle = nil
	c.owner = ""
	c.historyLoading = false
	c.liveSubscribed = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if live != nil {
		live.stop()
		c.cfg.Metrics.AddLiveSubscriptions(-1)
	}
	c.loaders.Wait()
	c.cfg.Session.Close()
	c.cfg.Metrics.SetSessionState(int(Disconnected))
	return active
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.cfg.Metrics.SetSessionState(int(s))
}

// current returns the handle and generation if the session is Ready.
func (c *Controller) current() (*session.Handle, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != Ready || c.handle == nil {
		return nil, 0
	}
	return c.handle, c.generation
}

func (c *Controller) watchAccounts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unwatch != nil {
		return
	}
	c.unwatch = c.cfg.Gate.OnAccountsChanged(c.onAccountChanged)
}

// onAccountChanged rebuilds the session for the new account. An empty account
// leaves the controller Disconnected.
func (c *Controller) onAccountChanged(account string) {
	c.mu.RLock()
	state := c.state
	var current string
	if c.handle != nil {
		current = c.handle.Account
	}
	c.mu.RUnlock()

	if state == Disconnected || wallet.SameAccount(current, account) {
		return
	}

	c.cfg.Events.Log(events.Event{
		Type:     events.EventAccountChanged,
		Account:  account,
		Metadata: map[string]string{"previous": current},
	})
	c.log.WithField("previous", current).WithField("account", account).Info("wallet account changed")

	if account == "" {
		c.Disconnect()
		return
	}
	if err := c.Connect(context.Background()); err != nil {
		c.log.WithError(err).Warn("session rebuild after account change failed")
	}
}

func connectResult(err error) string {
	switch {
	case errors.Is(err, wallet.ErrNoProvider):
		return "no_provider"
	case errors.Is(err, wallet.ErrAuthorizationDenied):
		return "denied"
	default:
		return "error"
	}
}
