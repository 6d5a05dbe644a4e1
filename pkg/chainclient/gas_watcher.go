package chainclient

import (
	"context"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/speedrun-hq/cachekeeper/pkg/gas"
	"github.com/speedrun-hq/cachekeeper/pkg/logger"
	"github.com/speedrun-hq/cachekeeper/pkg/metrics"
)

// GasPricer reads the network gas price
type GasPricer interface {
	GasPrice(ctx context.Context) (*big.Int, error)
}

// GasWatcher periodically refreshes the gas price and evaluates it against the
// policy in advisory mode. It never blocks submissions; it only warns.
type GasWatcher struct {
	chainID  int
	pricer   GasPricer
	policy   gas.Policy
	interval time.Duration
	logger   logger.Logger

	mu        sync.RWMutex
	latest    gas.Advisory
	updatedAt time.Time
	exceeded  bool
}

// NewGasWatcher creates a watcher
func NewGasWatcher(chainID int, pricer GasPricer, policy gas.Policy, interval time.Duration, log logger.Logger) *GasWatcher {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &GasWatcher{
		chainID:  chainID,
		pricer:   pricer,
		policy:   policy,
		interval: interval,
		logger:   log,
	}
}

// Run refreshes immediately and then every interval until ctx ends
func (w *GasWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Refresh(ctx)

	for {
		select {
		case <-ticker.C:
			w.Refresh(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// Refresh performs a single update
func (w *GasWatcher) Refresh(ctx context.Context) {
	gasPrice, err := w.pricer.GasPrice(ctx)
	if err != nil {
		w.logger.ErrorWithChain(w.chainID, "Failed to update gas price: %v", err)
		return
	}

	advisory := w.policy.Advise(gasPrice)

	w.mu.Lock()
	wasExceeded := w.exceeded
	w.latest = advisory
	w.updatedAt = time.Now()
	w.exceeded = advisory.Exceeded
	w.mu.Unlock()

	if advisory.Exceeded {
		metrics.GasCeilingExceeded.WithLabelValues(strconv.Itoa(w.chainID)).Inc()
		if !wasExceeded {
			w.logger.NoticeWithChain(w.chainID, "%s", advisory.Message())
		}
	} else if wasExceeded {
		w.logger.InfoWithChain(w.chainID, "Gas price back under the configured maximum")
	}
}

// Latest returns the last advisory and when it was taken. ok is false before the
// first successful refresh.
func (w *GasWatcher) Latest() (advisory gas.Advisory, updatedAt time.Time, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest, w.updatedAt, !w.updatedAt.IsZero()
}
