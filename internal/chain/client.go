// Package chain provides the go-ethereum binding of the tea-jar contract.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/pkg/logger"
)

// Backend is everything the contract binding needs from a node connection.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Config holds client configuration.
type Config struct {
	// RPCURL is an http(s) or ws(s) endpoint. Live subscriptions use
	// eth_subscribe on ws endpoints and fall back to log polling otherwise.
	RPCURL string

	// PollInterval is the log polling period used without notifications.
	PollInterval time.Duration

	Logger *logger.Logger
}

// Client is a node connection able to bind tea-jar contracts.
type Client struct {
	backend      Backend
	pollInterval time.Duration
	log          *logger.Logger
	closer       func()
}

// Dial connects to the configured node.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}

	c := NewClient(ec, cfg)
	c.closer = ec.Close
	return c, nil
}

// NewClient wraps an existing backend.
func NewClient(backend Backend, cfg Config) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("chain")
	}
	return &Client{
		backend:      backend,
		pollInterval: cfg.PollInterval,
		log:          cfg.Logger,
	}
}

// ChainID returns the chain id reported by the node.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, &RemoteCallError{Method: "eth_chainId", Err: err}
	}
	return id, nil
}

// Bind creates a contract handle signing with opts. opts may be nil for a
// read-only binding.
func (c *Client) Bind(address common.Address, parsed abi.ABI, opts *bind.TransactOpts) *TeaJar {
	return &TeaJar{
		address:      address,
		abi:          parsed,
		backend:      c.backend,
		contract:     bind.NewBoundContract(address, parsed, c.backend, c.backend, c.backend),
		signer:       opts,
		pollInterval: c.pollInterval,
		log:          c.log,
	}
}

// Close releases the node connection.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}
