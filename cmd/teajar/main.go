// Command teajar runs the tea-jar tipping client: it connects a wallet to the
// contract, keeps the memo list in sync and serves it over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/chain"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/config"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/controller"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/events"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/httpapi"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/memo"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/metrics"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/middleware"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/session"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/wallet"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "teajar: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New("teajar", logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	parsed, err := loadABI(cfg)
	if err != nil {
		return err
	}
	tipAmount, err := chain.ParseEther(cfg.TipAmount)
	if err != nil {
		return fmt.Errorf("tip amount: %w", err)
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, 15*time.Second)
	client, err := chain.Dial(dialCtx, chain.Config{
		RPCURL:       cfg.RPCURL,
		PollInterval: cfg.PollInterval,
		Logger:       log.Named("chain"),
	})
	cancelDial()
	if err != nil {
		return err
	}
	defer client.Close()

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}
	if !cfg.HasWallet() {
		log.Warn("no wallet configured; connect requests will fail until TEAJAR_KEYSTORE_DIR or TEAJAR_PRIVATE_KEY is set")
	}

	gate := wallet.NewGate(provider, log.Named("wallet"))
	collector := metrics.NewCollector("teajar")
	eventLog := events.NewRingBuffer(cfg.EventBuffer)

	ctrl := controller.New(controller.Config{
		Session: session.New(session.Config{
			Address: cfg.Contract(),
			ABI:     parsed,
			Gate:    gate,
			Binder:  session.FromChain(client),
			Logger:  log.Named("session"),
		}),
		Gate:      gate,
		Store:     memo.NewStore(),
		TipAmount: tipAmount,
		Events:    eventLog,
		Metrics:   collector,
		Logger:    log.Named("controller"),
	})
	defer ctrl.Close()

	stopResync, err := ctrl.StartResync(cfg.ResyncSchedule)
	if err != nil {
		return err
	}
	defer stopResync()

	if cfg.AutoConnect {
		if err := ctrl.Connect(ctx); err != nil {
			log.WithError(err).Warn("auto-connect failed; use POST /api/connect to retry")
		}
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, log.Named("ratelimit"))
	limiter.StartCleanup(ctx, time.Minute)

	srv := httpapi.New(httpapi.Config{
		Addr:        cfg.ListenAddr,
		Controller:  ctrl,
		Events:      eventLog,
		Metrics:     collector,
		Limiter:     limiter,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      log.Named("httpapi"),
	})

	log.WithField("contract", cfg.ContractAddress).
		WithField("rpc", cfg.RPCURL).
		WithField("tip", chain.FormatEther(tipAmount)).
		Info("teajar started")

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	log.Info("teajar stopped")
	return nil
}

func loadABI(cfg *config.Config) (abi.ABI, error) {
	if cfg.ABIPath == "" {
		return chain.DefaultABI(), nil
	}
	return chain.LoadArtifactABI(cfg.ABIPath)
}

// newProvider returns the configured wallet provider, or nil when none is set.
func newProvider(cfg *config.Config) (wallet.Provider, error) {
	if !cfg.HasWallet() {
		return nil, nil
	}
	if cfg.PrivateKey != "" {
		p, err := wallet.NewKeyProvider(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("private key: %w", err)
		}
		return p, nil
	}
	return wallet.NewKeystoreProvider(wallet.KeystoreConfig{
		Dir:        cfg.KeystoreDir,
		Passphrase: cfg.KeystorePassword,
	}), nil
}
