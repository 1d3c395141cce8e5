// Package session owns the per-account binding to the tea-jar contract.
package session

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/chain"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/memo"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/wallet"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/pkg/logger"
)

// Contract is the remote tea-jar capability a session binds.
type Contract interface {
	Owner(ctx context.Context) (common.Address, error)
	Memos(ctx context.Context) ([]memo.Record, error)
	BuyTea(ctx context.Context, name, message string, value *big.Int) (*types.Transaction, error)
	Withdraw(ctx context.Context) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	WatchNewMemo(ctx context.Context, sink chan<- memo.Record) (event.Subscription, error)
}

// Binder binds contracts on one chain.
type Binder interface {
	ChainID(ctx context.Context) (*big.Int, error)
	Bind(address common.Address, parsed abi.ABI, signer *bind.TransactOpts) Contract
}

// FromChain adapts a chain client to Binder.
func FromChain(c *chain.Client) Binder {
	return chainBinder{c: c}
}

type chainBinder struct {
	c *chain.Client
}

func (b chainBinder) ChainID(ctx context.Context) (*big.Int, error) {
	return b.c.ChainID(ctx)
}

func (b chainBinder) Bind(address common.Address, parsed abi.ABI, signer *bind.TransactOpts) Contract {
	return b.c.Bind(address, parsed, signer)
}

// Handle is the binding of contract address, interface description and
// signer for one authorized account. It is immutable once built.
type Handle struct {
	Address  common.Address
	ABI      abi.ABI
	Account  string
	ChainID  *big.Int
	Signer   *bind.TransactOpts
	Contract Contract
}

// Config holds session dependencies.
type Config struct {
	Address common.Address
	ABI     abi.ABI
	Gate    *wallet.Gate
	Binder  Binder
	Logger  *logger.Logger
}

// Session builds and owns the single live Handle.
type Session struct {
	mu     sync.RWMutex
	cfg    Config
	handle *Handle
	log    *logger.Logger
}

// New creates a session without a handle.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("session")
	}
	return &Session{cfg: cfg, log: cfg.Logger}
}

// Initialize authorizes the account, builds a signer for it and binds the
// contract. A previous handle is destroyed first. On failure the session
// holds no handle.
func (s *Session) Initialize(ctx context.Context) (*Handle, error) {
	s.Close()

	account, err := s.cfg.Gate.RequestAccount(ctx)
	if err != nil {
		return nil, err
	}

	chainID, err := s.cfg.Binder.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}

	signer, err := s.cfg.Gate.Signer(ctx, chainID)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		Address:  s.cfg.Address,
		ABI:      s.cfg.ABI,
		Account:  account,
		ChainID:  chainID,
		Signer:   signer,
		Contract: s.cfg.Binder.Bind(s.cfg.Address, s.cfg.ABI, signer),
	}

	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()

	s.log.WithField("account", account).
		WithField("contract", s.cfg.Address.Hex()).
		WithField("chain_id", chainID.String()).
		Info("contract session initialized")
	return h, nil
}

// Handle returns the live handle, or nil before initialization.
func (s *Session) Handle() *Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

// Close destroys the handle.
func (s *Session) Close() {
	s.mu.Lock()
	s.handle = nil
	s.mu.Unlock()
}
