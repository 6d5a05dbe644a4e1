package bidding

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/speedrun-hq/cachekeeper/pkg/logger"
	"github.com/speedrun-hq/cachekeeper/pkg/metrics"
	"github.com/speedrun-hq/cachekeeper/pkg/models"
	"github.com/speedrun-hq/cachekeeper/pkg/units"
	"github.com/speedrun-hq/cachekeeper/pkg/updates"
)

// maxConcurrentBids bounds the bids one automation tick submits in parallel
const maxConcurrentBids = 4

// Decision is what automation did with a contract on one tick
type Decision string

const (
	DecisionDisabled Decision = "disabled"
	DecisionBlocked  Decision = "blocked"
	DecisionCovered  Decision = "covered"
	DecisionOverMax  Decision = "over_max"
	DecisionPlaced   Decision = "placed"
	DecisionFailed   Decision = "failed"
)

// blockedEntry remembers a permanent failure until the contract's settings change
type blockedEntry struct {
	maxBid    string
	errorType string
}

// Automator keeps contracts with automation enabled above the CacheManager's
// minimum bid, never spending more than each contract's maximum.
type Automator struct {
	service       *Service
	interval      time.Duration
	bufferPercent int
	logger        logger.Logger

	mu      sync.Mutex
	blocked map[string]blockedEntry
}

// NewAutomator creates an automator. bufferPercent is added on top of the min bid.
func NewAutomator(service *Service, interval time.Duration, bufferPercent int, log logger.Logger) *Automator {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Automator{
		service:       service,
		interval:      interval,
		bufferPercent: bufferPercent,
		logger:        log,
		blocked:       make(map[string]blockedEntry),
	}
}

// Run evaluates all contracts every interval until ctx ends
func (a *Automator) Run(ctx context.Context) error {
	unsubscribe := a.service.bus.Subscribe(a.onUpdate)
	defer unsubscribe()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if _, err := a.RunOnce(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("Automation run failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// onUpdate drops remembered failures for contracts that changed elsewhere. A
// confirmed bid counts as a change.
func (a *Automator) onUpdate(signal updates.Signal) {
	switch signal.Kind {
	case updates.KindAutomation, updates.KindBid, updates.KindDeleted, updates.KindAdded:
		a.mu.Lock()
		delete(a.blocked, signal.EntityID)
		a.mu.Unlock()
	}
}

// RunOnce evaluates every contract once and returns the decision per contract ID
func (a *Automator) RunOnce(ctx context.Context) (map[string]Decision, error) {
	contracts, err := a.service.backend.ListContracts(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	decisions := make(map[string]Decision, len(contracts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBids)
	for _, contract := range contracts {
		contract := contract
		g.Go(func() error {
			decision := a.evaluate(gctx, contract)
			metrics.AutomationRuns.WithLabelValues(string(decision)).Inc()

			mu.Lock()
			decisions[contract.ID] = decision
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return decisions, nil
}

func (a *Automator) evaluate(ctx context.Context, contract models.Contract) Decision {
	settings := contract.Automation
	if !settings.Enabled {
		return DecisionDisabled
	}

	a.mu.Lock()
	entry, blocked := a.blocked[contract.ID]
	a.mu.Unlock()
	if blocked && entry.maxBid == settings.MaxBid {
		return DecisionBlocked
	}

	maxBid, err := units.ParseEther(settings.MaxBid)
	if err != nil {
		a.block(contract, "invalid_max_bid")
		a.logger.Error("Contract %s has an invalid max bid %q", contract.ID, settings.MaxBid)
		return DecisionBlocked
	}

	if !common.IsHexAddress(contract.Address) {
		a.block(contract, "invalid_address")
		return DecisionBlocked
	}
	minBid, err := a.service.chain.MinBid(ctx, common.HexToAddress(contract.Address))
	if err != nil {
		a.logger.Error("Failed to read min bid for %s: %v", contract.Name, err)
		return DecisionFailed
	}

	if contract.IsCached && lastBidCovers(contract.LastBid, minBid) {
		return DecisionCovered
	}
	if minBid.Cmp(maxBid) > 0 {
		a.logger.Notice("Min bid %s ETH for %s exceeds its max bid %s ETH",
			units.FormatEther(minBid), contract.Name, settings.MaxBid)
		return DecisionOverMax
	}

	bid := BidAmount(minBid, maxBid, a.bufferPercent)
	a.logger.Info("Automation bidding %s ETH for %s (min %s ETH)", units.FormatEther(bid), contract.Name, units.FormatEther(minBid))

	if _, err := a.service.placeBid(ctx, contract.ID, units.FormatEther(bid), true); err != nil {
		retryable, errorType := ClassifyError(err)
		if !retryable {
			a.block(contract, errorType)
			metrics.PermanentErrors.WithLabelValues(errorType).Inc()
			a.logger.Error("Automation for %s stopped until its settings change (%s): %v", contract.Name, errorType, err)
		}
		return DecisionFailed
	}
	return DecisionPlaced
}

func (a *Automator) block(contract models.Contract, errorType string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blocked[contract.ID] = blockedEntry{maxBid: contract.Automation.MaxBid, errorType: errorType}
}

// Blocked returns the error type that stopped automation for a contract
func (a *Automator) Blocked(contractID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.blocked[contractID]
	return entry.errorType, ok
}

// BidAmount adds bufferPercent to minBid and caps the result at maxBid
func BidAmount(minBid, maxBid *big.Int, bufferPercent int) *big.Int {
	bid := new(big.Int).Mul(minBid, big.NewInt(int64(100+bufferPercent)))
	bid.Div(bid, big.NewInt(100))
	if bid.Cmp(minBid) < 0 {
		bid.Set(minBid)
	}
	if bid.Cmp(maxBid) > 0 {
		bid.Set(maxBid)
	}
	return bid
}

func lastBidCovers(last *models.Bid, minBid *big.Int) bool {
	if last == nil {
		return false
	}
	amount, ok := new(big.Int).SetString(last.Amount, 10)
	return ok && amount.Cmp(minBid) >= 0
}
