// Package wallet authorizes the account that signs tea-jar transactions.
package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNoProvider means no wallet capability is configured.
	ErrNoProvider = errors.New("no wallet provider available")
	// ErrAuthorizationDenied means the provider refused to expose an account.
	ErrAuthorizationDenied = errors.New("wallet authorization denied")
)

// Provider is a wallet capability: it holds keys, authorizes accounts and
// signs transactions for them.
type Provider interface {
	// RequestAccounts authorizes and returns the available accounts, the
	// active one first. Providers may cache consent across calls.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// Transactor returns signing options for an authorized account.
	Transactor(ctx context.Context, account common.Address, chainID *big.Int) (*bind.TransactOpts, error)

	// OnAccountsChanged registers fn for account list changes and returns the
	// function that removes it.
	OnAccountsChanged(fn func([]common.Address)) (unsubscribe func())
}
