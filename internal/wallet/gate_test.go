package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/pkg/logger"
)

type stubProvider struct {
	accounts []common.Address
	err      error
	requests int
	changed  func([]common.Address)
}

func (s *stubProvider) RequestAccounts(context.Context) ([]common.Address, error) {
	s.requests++
	return s.accounts, s.err
}

func (s *stubProvider) Transactor(_ context.Context, account common.Address, _ *big.Int) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: account}, nil
}

func (s *stubProvider) OnAccountsChanged(fn func([]common.Address)) func() {
	s.changed = fn
	return func() { s.changed = nil }
}

func TestGate_NoProvider(t *testing.T) {
	g := NewGate(nil, logger.Discard())

	_, err := g.RequestAccount(context.Background())
	assert.ErrorIs(t, err, ErrNoProvider)
	assert.Empty(t, g.Account())

	_, err = g.Signer(context.Background(), big.NewInt(1))
	assert.ErrorIs(t, err, ErrNoProvider)

	// Must not panic.
	g.OnAccountsChanged(func(string) {})()
}

func TestGate_RequestAccount(t *testing.T) {
	first := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	p := &stubProvider{accounts: []common.Address{first, common.HexToAddress("0xbb")}}
	g := NewGate(p, logger.Discard())

	account, err := g.RequestAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Hex(), account)
	assert.Equal(t, first.Hex(), g.Account())

	opts, err := g.Signer(context.Background(), big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, first, opts.From)

	g.Clear()
	assert.Empty(t, g.Account())
}

func TestGate_Denied(t *testing.T) {
	g := NewGate(&stubProvider{}, logger.Discard())
	_, err := g.RequestAccount(context.Background())
	assert.ErrorIs(t, err, ErrAuthorizationDenied)

	g = NewGate(&stubProvider{err: ErrAuthorizationDenied}, logger.Discard())
	_, err = g.RequestAccount(context.Background())
	assert.ErrorIs(t, err, ErrAuthorizationDenied)

	boom := errors.New("boom")
	g = NewGate(&stubProvider{err: boom}, logger.Discard())
	_, err = g.RequestAccount(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = g.Signer(context.Background(), big.NewInt(1))
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestGate_OnAccountsChanged(t *testing.T) {
	p := &stubProvider{}
	g := NewGate(p, logger.Discard())

	var got []string
	unsubscribe := g.OnAccountsChanged(func(account string) {
		got = append(got, account)
	})

	p.changed([]common.Address{common.HexToAddress("0x00000000000000000000000000000000000000cc")})
	p.changed(nil)
	unsubscribe()

	assert.Equal(t, []string{common.HexToAddress("0xcc").Hex(), ""}, got)
	assert.Nil(t, p.changed)
}

func TestSameAccount(t *testing.T) {
	assert.True(t, SameAccount("0xAA", "0xaa"))
	assert.False(t, SameAccount("0xAA", "0xBB"))
	assert.False(t, SameAccount("", ""))
	assert.False(t, SameAccount("0xAA", ""))
}

func TestKeyProvider(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := "0x" + common.Bytes2Hex(crypto.FromECDSA(key))

	p, err := NewKeyProvider(hexKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), p.Address())

	accounts, err := p.RequestAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{p.Address()}, accounts)

	opts, err := p.Transactor(context.Background(), p.Address(), big.NewInt(1337))
	require.NoError(t, err)
	assert.Equal(t, p.Address(), opts.From)

	_, err = p.Transactor(context.Background(), common.HexToAddress("0x01"), big.NewInt(1337))
	assert.ErrorIs(t, err, ErrAuthorizationDenied)

	_, err = NewKeyProvider("not-a-key")
	assert.Error(t, err)
}

func TestKeystoreProvider(t *testing.T) {
	dir := t.TempDir()
	p := NewKeystoreProvider(KeystoreConfig{Dir: dir, Passphrase: "secret", LightScrypt: true})

	_, err := p.RequestAccounts(context.Background())
	assert.ErrorIs(t, err, ErrAuthorizationDenied)

	acct, err := p.KeyStore().NewAccount("secret")
	require.NoError(t, err)

	_, err = p.Transactor(context.Background(), acct.Address, big.NewInt(1337))
	assert.ErrorIs(t, err, ErrAuthorizationDenied)

	accounts, err := p.RequestAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{acct.Address}, accounts)

	opts, err := p.Transactor(context.Background(), acct.Address, big.NewInt(1337))
	require.NoError(t, err)
	assert.Equal(t, acct.Address, opts.From)
}

func TestKeystoreProvider_WrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	p := NewKeystoreProvider(KeystoreConfig{Dir: dir, Passphrase: "wrong", LightScrypt: true})
	_, err := p.KeyStore().NewAccount("secret")
	require.NoError(t, err)

	_, err = p.RequestAccounts(context.Background())
	assert.ErrorIs(t, err, ErrAuthorizationDenied)
}

func TestKeystoreProvider_OnAccountsChanged(t *testing.T) {
	p := NewKeystoreProvider(KeystoreConfig{Dir: t.TempDir(), Passphrase: "secret", LightScrypt: true})

	changed := make(chan []common.Address, 4)
	unsubscribe := p.OnAccountsChanged(func(accounts []common.Address) {
		changed <- accounts
	})
	defer unsubscribe()

	acct, err := p.KeyStore().NewAccount("secret")
	require.NoError(t, err)

	select {
	case accounts := <-changed:
		assert.Contains(t, accounts, acct.Address)
	case <-time.After(5 * time.Second):
		t.Fatal("no account change reported")
	}
}
