// Package testutil provides mock wallet providers and contracts for tests.
package testutil

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/memo"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/session"
)

// =============================================================================
// Wallet provider
// =============================================================================

// MockProvider is a wallet.Provider whose accounts tests control.
type MockProvider struct {
	mu        sync.Mutex
	accounts  []common.Address
	err       error
	requests  int
	listeners map[int]func([]common.Address)
	nextID    int
}

// NewMockProvider creates a provider exposing accounts, active first.
func NewMockProvider(accounts ...string) *MockProvider {
	p := &MockProvider{listeners: make(map[int]func([]common.Address))}
	p.accounts = toAddresses(accounts)
	return p
}

// SetError makes RequestAccounts fail with err (nil clears it).
func (p *MockProvider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// SwitchAccounts replaces the account list and notifies listeners.
func (p *MockProvider) SwitchAccounts(accounts ...string) {
	p.mu.Lock()
	p.accounts = toAddresses(accounts)
	current := append([]common.Address(nil), p.accounts...)
	listeners := make([]func([]common.Address), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(current)
	}
}

// Requests returns how many times RequestAccounts was called.
func (p *MockProvider) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

// Listeners returns the number of registered account-change listeners.
func (p *MockProvider) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

func (p *MockProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	if p.err != nil {
		return nil, p.err
	}
	return append([]common.Address(nil), p.accounts...), nil
}

func (p *MockProvider) Transactor(_ context.Context, account common.Address, _ *big.Int) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: account}, nil
}

func (p *MockProvider) OnAccountsChanged(fn func([]common.Address)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func toAddresses(accounts []string) []common.Address {
	out := make([]common.Address, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, common.HexToAddress(a))
	}
	return out
}

// =============================================================================
// Contract
// =============================================================================

// TipCall records one buyTea invocation.
type TipCall struct {
	Name    string
	Message string
	Value   *big.Int
}

// MockContract is an in-memory session.Contract.
type MockContract struct {
	mu sync.Mutex

	owner    common.Address
	ownerErr error
	memos    []memo.Record
	memosErr error
	release  chan struct{}
	sendErr  error
	mineErr  error

	tips        []TipCall
	withdrawals int
	subscribed  int
	subs        map[*mockSub]struct{}
	nonce       uint64
}

// NewMockContract creates a contract owned by owner holding memos.
func NewMockContract(owner string, memos ...memo.Record) *MockContract {
	return &MockContract{
		owner: common.HexToAddress(owner),
		memos: memos,
		subs:  make(map[*mockSub]struct{}),
	}
}

// FailOwner makes Owner fail.
func (m *MockContract) FailOwner(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ownerErr = err
}

// FailMemos makes Memos fail.
func (m *MockContract) FailMemos(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memosErr = err
}

// FailSend makes BuyTea and Withdraw fail before anything is recorded.
func (m *MockContract) FailSend(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// FailMine makes WaitMined fail.
func (m *MockContract) FailMine(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mineErr = err
}

// HoldMemos makes Memos block until the returned function is called.
func (m *MockContract) HoldMemos() (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.release = ch
	m.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// AddMemo appends a memo to the contract history without emitting it.
func (m *MockContract) AddMemo(r memo.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memos = append(m.memos, r)
}

// Emit delivers r to every active subscription, blocking until each accepted
// it or unsubscribed.
func (m *MockContract) Emit(r memo.Record) {
	m.mu.Lock()
	subs := make([]*mockSub, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		select {
		case s.sink <- r:
		case <-s.quit:
		}
	}
}

// ActiveSubscriptions returns the number of live NewMemo subscriptions.
func (m *MockContract) ActiveSubscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// SubscribeCalls returns how many subscriptions were ever opened.
func (m *MockContract) SubscribeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribed
}

// Tips returns every buyTea call.
func (m *MockContract) Tips() []TipCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TipCall(nil), m.tips...)
}

// Withdrawals returns how many withdraw calls were sent.
func (m *MockContract) Withdrawals() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.withdrawals
}

func (m *MockContract) Owner(ctx context.Context) (common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner, m.ownerErr
}

func (m *MockContract) Memos(ctx context.Context) ([]memo.Record, error) {
	m.mu.Lock()
	release := m.release
	m.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.memosErr != nil {
		return nil, m.memosErr
	}
	return append([]memo.Record(nil), m.memos...), nil
}

func (m *MockContract) BuyTea(_ context.Context, name, message string, value *big.Int) (*types.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.tips = append(m.tips, TipCall{Name: name, Message: message, Value: new(big.Int).Set(value)})
	return m.nextTxLocked(value), nil
}

func (m *MockContract) Withdraw(context.Context) (*types.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.withdrawals++
	return m.nextTxLocked(nil), nil
}

func (m *MockContract) WaitMined(_ context.Context, tx *types.Transaction) (*types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mineErr != nil {
		return nil, m.mineErr
	}
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(int64(tx.Nonce()) + 1),
	}, nil
}

func (m *MockContract) WatchNewMemo(_ context.Context, sink chan<- memo.Record) (event.Subscription, error) {
	s := &mockSub{
		contract: m,
		sink:     sink,
		quit:     make(chan struct{}),
		err:      make(chan error),
	}
	m.mu.Lock()
	m.subs[s] = struct{}{}
	m.subscribed++
	m.mu.Unlock()
	return s, nil
}

func (m *MockContract) nextTxLocked(value *big.Int) *types.Transaction {
	m.nonce++
	if value == nil {
		value = new(big.Int)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    m.nonce,
		Value:    value,
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
}

type mockSub struct {
	contract *MockContract
	sink     chan<- memo.Record
	quit     chan struct{}
	err      chan error
	once     sync.Once
}

func (s *mockSub) Unsubscribe() {
	s.once.Do(func() {
		s.contract.mu.Lock()
		delete(s.contract.subs, s)
		s.contract.mu.Unlock()
		close(s.quit)
		close(s.err)
	})
}

func (s *mockSub) Err() <-chan error {
	return s.err
}

// =============================================================================
// Binder
// =============================================================================

// MockBinder binds every address to the same MockContract.
type MockBinder struct {
	mu       sync.Mutex
	contract *MockContract
	chainID  *big.Int
	chainErr error
	signers  []*bind.TransactOpts
}

// NewMockBinder creates a binder returning contract on chain 1337.
func NewMockBinder(contract *MockContract) *MockBinder {
	return &MockBinder{contract: contract, chainID: big.NewInt(1337)}
}

// FailChainID makes ChainID fail.
func (b *MockBinder) FailChainID(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chainErr = err
}

// Binds returns how many handles were bound.
func (b *MockBinder) Binds() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.signers)
}

// LastSigner returns the signer of the most recent binding.
func (b *MockBinder) LastSigner() *bind.TransactOpts {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.signers) == 0 {
		return nil
	}
	return b.signers[len(b.signers)-1]
}

func (b *MockBinder) ChainID(context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.chainErr != nil {
		return nil, b.chainErr
	}
	return new(big.Int).Set(b.chainID), nil
}

func (b *MockBinder) Bind(_ common.Address, _ abi.ABI, signer *bind.TransactOpts) session.Contract {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signers = append(b.signers, signer)
	return b.contract
}
