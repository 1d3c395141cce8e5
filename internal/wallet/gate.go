package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/pkg/logger"
)

// Gate obtains authorization for the active account and remembers it.
type Gate struct {
	mu       sync.RWMutex
	provider Provider
	account  string
	log      *logger.Logger
}

// NewGate creates a gate over provider. A nil provider is allowed; every
// request then fails with ErrNoProvider.
func NewGate(provider Provider, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.NewDefault("wallet")
	}
	return &Gate{provider: provider, log: log}
}

// RequestAccount asks the provider for authorization and returns the first
// authorized account as a hex address.
func (g *Gate) RequestAccount(ctx context.Context) (string, error) {
	if g.provider == nil {
		g.log.Warn("no wallet provider configured, install or configure a wallet")
		return "", ErrNoProvider
	}

	accounts, err := g.provider.RequestAccounts(ctx)
	if err != nil {
		if errors.Is(err, ErrAuthorizationDenied) {
			return "", err
		}
		return "", fmt.Errorf("request accounts: %w", err)
	}
	if len(accounts) == 0 {
		return "", fmt.Errorf("%w: provider returned no accounts", ErrAuthorizationDenied)
	}

	account := accounts[0].Hex()
	g.mu.Lock()
	g.account = account
	g.mu.Unlock()

	g.log.WithField("account", account).Info("wallet account authorized")
	return account, nil
}

// Account returns the authorized account, or "" when not connected.
func (g *Gate) Account() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.account
}

// Clear forgets the authorized account.
func (g *Gate) Clear() {
	g.mu.Lock()
	g.account = ""
	g.mu.Unlock()
}

// Signer returns signing options for the authorized account.
func (g *Gate) Signer(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
	if g.provider == nil {
		return nil, ErrNoProvider
	}
	account := g.Account()
	if account == "" {
		return nil, fmt.Errorf("%w: no authorized account", ErrAuthorizationDenied)
	}
	opts, err := g.provider.Transactor(ctx, common.HexToAddress(account), chainID)
	if err != nil {
		return nil, fmt.Errorf("build signer: %w", err)
	}
	return opts, nil
}

// OnAccountsChanged calls fn with the new active account ("" when none) each
// time the provider reports an account change.
func (g *Gate) OnAccountsChanged(fn func(account string)) (unsubscribe func()) {
	if g.provider == nil {
		return func() {}
	}
	return g.provider.OnAccountsChanged(func(accounts []common.Address) {
		if len(accounts) == 0 {
			fn("")
			return
		}
		fn(accounts[0].Hex())
	})
}

// SameAccount compares two hex addresses case-insensitively.
func SameAccount(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}
