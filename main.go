package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/speedrun-hq/cachekeeper/pkg/backend"
	"github.com/speedrun-hq/cachekeeper/pkg/bidding"
	"github.com/speedrun-hq/cachekeeper/pkg/chainclient"
	"github.com/speedrun-hq/cachekeeper/pkg/circuitbreaker"
	"github.com/speedrun-hq/cachekeeper/pkg/config"
	"github.com/speedrun-hq/cachekeeper/pkg/gas"
	"github.com/speedrun-hq/cachekeeper/pkg/health"
	"github.com/speedrun-hq/cachekeeper/pkg/logger"
	"github.com/speedrun-hq/cachekeeper/pkg/notify"
	"github.com/speedrun-hq/cachekeeper/pkg/reconcile"
	"github.com/speedrun-hq/cachekeeper/pkg/updates"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	stdLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	// Cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, stdLogger); err != nil && !errors.Is(err, context.Canceled) {
		stdLogger.Error("cachekeeper stopped: %v", err)
		os.Exit(1)
	}
	stdLogger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	chain, err := chainclient.New(ctx, cfg.ChainID, cfg.RPCURL, cfg.CacheManagerAddress, cfg.PrivateKey, log)
	if err != nil {
		return err
	}

	breaker := circuitbreaker.New("backend", circuitbreaker.Config{
		Enabled:      cfg.CircuitBreaker.Enabled,
		Threshold:    cfg.CircuitBreaker.Threshold,
		Window:       cfg.CircuitBreaker.WindowDuration,
		ResetTimeout: cfg.CircuitBreaker.ResetTimeout,
	}, log)

	api := backend.New(cfg.APIBaseURL, backend.Options{
		RateLimit: cfg.BackendRateLimit,
		Breaker:   breaker,
		Signer:    chain.PrivateKey(),
	}, log)

	if chain.CanSign() {
		if err := api.EnsureLogin(ctx, chain.PrivateKey()); err != nil {
			log.Notice("Backend login failed, continuing without a session: %v", err)
		} else {
			log.Info("Authenticated with backend as %s", chain.From().Hex())
			checkAlerts(ctx, notify.NewManager(api, log), log)
		}
	} else {
		log.Notice("No PRIVATE_KEY configured, running read-only")
	}

	policy := gas.Policy{MaxGasPrice: cfg.Gas.MaxGasPrice, GasLimit: cfg.Gas.GasLimit}

	service := bidding.NewService(bidding.Config{
		ChainID:             cfg.ChainID,
		CacheManagerAddress: common.HexToAddress(cfg.CacheManagerAddress),
		Policy:              policy,
		AutoResetDelay:      cfg.Tx.AutoResetDelay,
		TxTimeout:           cfg.Tx.Timeout,
	}, api, chain, updates.Default(), reconcile.NewPoller(cfg.Reconcile.MaxAttempts, cfg.Reconcile.Interval, log), log)

	watcher := chainclient.NewGasWatcher(cfg.ChainID, chain, policy, cfg.GasWatchInterval, log)

	server := health.NewServer(cfg.MetricsPort, health.Dependencies{
		ChainID:      cfg.ChainID,
		CacheManager: cfg.CacheManagerAddress,
		Chain:        chain,
		Gas:          watcher,
		Transactions: service,
		Backend:      api,
		Breakers:     []*circuitbreaker.CircuitBreaker{breaker},
	}, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(ctx) })
	g.Go(func() error { return watcher.Run(ctx) })

	if cfg.Automation.Enabled && chain.CanSign() {
		automator := bidding.NewAutomator(service, cfg.Automation.Interval, cfg.Automation.BidBufferPercent, log)
		g.Go(func() error { return automator.Run(ctx) })
		log.Info("Bid automation enabled, checking every %s", cfg.Automation.Interval)
	}

	log.InfoWithChain(cfg.ChainID, "cachekeeper running, CacheManager %s", cfg.CacheManagerAddress)
	return g.Wait()
}

// checkAlerts reports alert channels that are switched on but cannot deliver
func checkAlerts(ctx context.Context, manager *notify.Manager, log logger.Logger) {
	_, result, err := manager.Load(ctx)
	if err != nil {
		log.Debug("Could not load alert preferences: %v", err)
		return
	}
	for _, channel := range result.EnabledButInvalidChannels {
		log.Notice("Alert channel %s is enabled but incomplete", channel)
	}
	if len(result.ConfiguredChannels) == 0 {
		log.Notice("No alert channel is configured")
	}
}
