package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
)

// KeystoreConfig configures a keystore-backed provider.
type KeystoreConfig struct {
	Dir        string
	Passphrase string

	// LightScrypt uses cheap key derivation. Only for tests and throwaway keys.
	LightScrypt bool
}

// KeystoreProvider authorizes accounts from an encrypted key directory.
// Authorization unlocks the active account with the configured passphrase.
type KeystoreProvider struct {
	ks         *keystore.KeyStore
	passphrase string

	mu       sync.Mutex
	unlocked map[common.Address]bool
}

// NewKeystoreProvider opens (or creates) the keystore directory.
func NewKeystoreProvider(cfg KeystoreConfig) *KeystoreProvider {
	n, p := keystore.StandardScryptN, keystore.StandardScryptP
	if cfg.LightScrypt {
		n, p = keystore.LightScryptN, keystore.LightScryptP
	}
	return &KeystoreProvider{
		ks:         keystore.NewKeyStore(cfg.Dir, n, p),
		passphrase: cfg.Passphrase,
		unlocked:   make(map[common.Address]bool),
	}
}

// KeyStore exposes the underlying keystore.
func (p *KeystoreProvider) KeyStore() *keystore.KeyStore {
	return p.ks
}

// RequestAccounts unlocks the first account on first use and returns all
// accounts in the directory.
func (p *KeystoreProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	list := p.addresses()
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: keystore has no accounts", ErrAuthorizationDenied)
	}

	active := list[0]
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.unlocked[active] {
		if err := p.ks.Unlock(accounts.Account{Address: active}, p.passphrase); err != nil {
			return nil, fmt.Errorf("%w: unlock %s: %v", ErrAuthorizationDenied, active.Hex(), err)
		}
		p.unlocked[active] = true
	}
	return list, nil
}

// Transactor signs with the keystore. The account must have been authorized
// through RequestAccounts.
func (p *KeystoreProvider) Transactor(_ context.Context, account common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	p.mu.Lock()
	ok := p.unlocked[account]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s is locked", ErrAuthorizationDenied, account.Hex())
	}
	return bind.NewKeyStoreTransactorWithChainID(p.ks, accounts.Account{Address: account}, chainID)
}

// OnAccountsChanged reports the account list whenever a key file arrives or is
// dropped from the directory.
func (p *KeystoreProvider) OnAccountsChanged(fn func([]common.Address)) func() {
	events := make(chan accounts.WalletEvent, 16)
	sub := p.ks.Subscribe(events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev := <-events:
				if ev.Kind == accounts.WalletArrived || ev.Kind == accounts.WalletDropped {
					fn(p.addresses())
				}
			case <-sub.Err():
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.Unsubscribe()
			<-done
		})
	}
}

func (p *KeystoreProvider) addresses() []common.Address {
	accts := p.ks.Accounts()
	out := make([]common.Address, 0, len(accts))
	for _, a := range accts {
		out = append(out, a.Address)
	}
	return out
}
