// Package bidding places CacheManager bids for tracked contracts and keeps the
// backend and the other components in step with the result.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/cachekeeper/pkg/backend"
	"github.com/speedrun-hq/cachekeeper/pkg/contracts"
	"github.com/speedrun-hq/cachekeeper/pkg/gas"
	"github.com/speedrun-hq/cachekeeper/pkg/logger"
	"github.com/speedrun-hq/cachekeeper/pkg/metrics"
	"github.com/speedrun-hq/cachekeeper/pkg/models"
	"github.com/speedrun-hq/cachekeeper/pkg/reconcile"
	"github.com/speedrun-hq/cachekeeper/pkg/txlifecycle"
	"github.com/speedrun-hq/cachekeeper/pkg/txprep"
	"github.com/speedrun-hq/cachekeeper/pkg/units"
	"github.com/speedrun-hq/cachekeeper/pkg/updates"
)

// Backend is the part of the REST API the service mutates and polls
type Backend interface {
	ListContracts(ctx context.Context) ([]models.Contract, error)
	GetContract(ctx context.Context, id string) (*models.Contract, error)
	CreateContract(ctx context.Context, req models.CreateContractRequest) (*models.Contract, error)
	UpdateContractName(ctx context.Context, id, name string) (*models.Contract, error)
	UpdateAutomation(ctx context.Context, id string, settings models.AutomationSettings) (*models.Contract, error)
	DeleteContract(ctx context.Context, id string) error
	RecordBid(ctx context.Context, contractID string, req models.RecordBidRequest) (*models.Bid, error)
}

// Chain is the chain provider plus the CacheManager reads bidding needs
type Chain interface {
	txlifecycle.Provider
	MinBid(ctx context.Context, program common.Address) (*big.Int, error)
	InvalidateMinBid(program common.Address)
	From() common.Address
}

// Config configures a Service
type Config struct {
	ChainID             int
	CacheManagerAddress common.Address
	Policy              gas.Policy
	AutoResetDelay      time.Duration
	TxTimeout           time.Duration
}

// BidResult describes a confirmed bid
type BidResult struct {
	ContractID string
	TxHash     common.Hash
	Amount     *big.Int // wei
	Outcome    reconcile.Outcome
	// Reconciled is false when the backend had not indexed the bid in time. The bid
	// itself is confirmed on chain either way.
	Reconciled bool
	GasWarning string
}

// Service runs the bid flow and contract mutations. Each contract gets its own
// transaction lifecycle, so bids on different contracts may overlap while a second
// bid on the same contract is refused with txlifecycle.ErrBusy.
type Service struct {
	cfg     Config
	backend Backend
	chain   Chain
	bus     *updates.Bus
	poller  *reconcile.Poller
	logger  logger.Logger

	mu         sync.Mutex
	lifecycles map[string]*txlifecycle.Lifecycle
}

// NewService creates a new Service
func NewService(cfg Config, backendClient Backend, chain Chain, bus *updates.Bus, poller *reconcile.Poller, log logger.Logger) *Service {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if bus == nil {
		bus = updates.Default()
	}
	if poller == nil {
		poller = reconcile.NewPoller(reconcile.DefaultMaxAttempts, reconcile.DefaultInterval, log)
	}
	return &Service{
		cfg:        cfg,
		backend:    backendClient,
		chain:      chain,
		bus:        bus,
		poller:     poller,
		logger:     log,
		lifecycles: make(map[string]*txlifecycle.Lifecycle),
	}
}

// PlaceBid bids amountEth (decimal ETH) for the contract and waits until the
// backend reflects it or the reconciliation budget runs out.
func (s *Service) PlaceBid(ctx context.Context, contractID, amountEth string) (*BidResult, error) {
	return s.placeBid(ctx, contractID, amountEth, false)
}

// RetryBid resubmits the last bid for the contract with identical parameters
func (s *Service) RetryBid(ctx context.Context, contractID string) (*BidResult, error) {
	contract, err := s.getContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	lc := s.lifecycle(contractID)
	warning := s.gasAdvisory(ctx)

	start := time.Now()
	hash, err := lc.Retry(ctx)
	s.observeOutcome(lc, start, err)
	if err != nil {
		return nil, err
	}

	return s.afterConfirm(ctx, contract, lc, hash, intentAmount(lc), warning, false)
}

// intentAmount returns the wei value of the lifecycle's retained intent
func intentAmount(lc *txlifecycle.Lifecycle) *big.Int {
	snapshot := lc.Snapshot()
	if snapshot.Intent == nil || snapshot.Intent.Value == "" {
		return new(big.Int)
	}
	amount, err := units.ParseEther(snapshot.Intent.Value)
	if err != nil {
		return new(big.Int)
	}
	return amount
}

func (s *Service) placeBid(ctx context.Context, contractID, amountEth string, automated bool) (*BidResult, error) {
	contract, err := s.getContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(contract.Address) {
		return nil, fmt.Errorf("%w: contract %s has address %q", txprep.ErrInvalidAddress, contractID, contract.Address)
	}
	program := common.HexToAddress(contract.Address)

	warning := s.gasAdvisory(ctx)

	intent := txprep.Intent{
		Address:  s.cfg.CacheManagerAddress.Hex(),
		ABI:      contracts.CacheManagerABI,
		Function: contracts.PlaceBidMethod,
		Args:     []interface{}{program},
		Value:    amountEth,
	}

	lc := s.lifecycle(contractID)
	start := time.Now()
	hash, err := lc.Submit(ctx, intent, func(common.Hash) {
		s.chain.InvalidateMinBid(program)
	})
	s.observeOutcome(lc, start, err)
	if err != nil {
		s.logger.ErrorWithChain(s.cfg.ChainID, "Bid of %s ETH for %s failed: %v", amountEth, contract.Name, err)
		return nil, err
	}
	s.logger.InfoWithChain(s.cfg.ChainID, "Bid of %s ETH for %s confirmed: %s", amountEth, contract.Name, hash.Hex())

	return s.afterConfirm(ctx, contract, lc, hash, intentAmount(lc), warning, automated)
}

// afterConfirm reports the bid, waits for the indexer and broadcasts the change.
// A reconciliation timeout still counts as success.
func (s *Service) afterConfirm(ctx context.Context, contract *models.Contract, lc *txlifecycle.Lifecycle, hash common.Hash, amount *big.Int, warning string, automated bool) (*BidResult, error) {
	var blockNumber uint64
	if receipt := lc.Snapshot().Receipt; receipt != nil && receipt.BlockNumber != nil {
		blockNumber = receipt.BlockNumber.Uint64()
	}

	_, err := s.backend.RecordBid(ctx, contract.ID, models.RecordBidRequest{
		Amount:      amount.String(),
		TxHash:      hash.Hex(),
		Bidder:      s.chain.From().Hex(),
		BlockNumber: blockNumber,
		Automated:   automated,
	})
	if err != nil {
		// the indexer will still pick the bid up from chain
		s.logger.Notice("Failed to record bid %s on backend: %v", hash.Hex(), err)
	}

	outcome, err := s.poller.PollUntil(ctx, func(ctx context.Context) (bool, error) {
		latest, err := s.backend.GetContract(ctx, contract.ID)
		if err != nil {
			return false, err
		}
		return latest.HasBid(hash.Hex()), nil
	})
	metrics.ReconcileOutcomes.WithLabelValues(outcome.String()).Inc()

	result := &BidResult{
		ContractID: contract.ID,
		TxHash:     hash,
		Amount:     amount,
		Outcome:    outcome,
		Reconciled: outcome == reconcile.Reconciled,
		GasWarning: warning,
	}
	if err != nil {
		return result, err
	}
	if outcome == reconcile.TimedOut {
		s.logger.Notice("Backend has not indexed bid %s yet, continuing", hash.Hex())
	}

	s.bus.Emit(contract.ID, updates.KindBid)
	return result, nil
}

// gasAdvisory returns a warning when the network price is above the ceiling. It never blocks.
func (s *Service) gasAdvisory(ctx context.Context) string {
	price, err := s.chain.GasPrice(ctx)
	if err != nil {
		s.logger.Debug("Gas price unavailable for advisory check: %v", err)
		return ""
	}
	advisory := s.cfg.Policy.Advise(price)
	if advisory.Exceeded {
		s.logger.NoticeWithChain(s.cfg.ChainID, "%s", advisory.Message())
	}
	return advisory.Message()
}

func (s *Service) observeOutcome(lc *txlifecycle.Lifecycle, start time.Time, err error) {
	chainID := strconv.Itoa(s.cfg.ChainID)
	status := lc.Status().String()
	if err != nil && !lc.Status().Terminal() {
		status = "refused"
	}
	metrics.BidsPlaced.WithLabelValues(chainID, status).Inc()
	metrics.TxConfirmationTime.WithLabelValues(chainID, status).Observe(time.Since(start).Seconds())
}

// lifecycle returns the contract's lifecycle, creating it on first use
func (s *Service) lifecycle(contractID string) *txlifecycle.Lifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lc, ok := s.lifecycles[contractID]; ok {
		return lc
	}
	lc := txlifecycle.New(s.chain, s.cfg.Policy, txlifecycle.Options{
		AutoResetDelay: s.cfg.AutoResetDelay,
		Timeout:        s.cfg.TxTimeout,
		OnTransition: func(from, to txlifecycle.Status) {
			metrics.TxTransitions.WithLabelValues(from.String(), to.String()).Inc()
		},
	}, s.logger)
	s.lifecycles[contractID] = lc
	return lc
}

// Transactions returns the current lifecycle state per contract
func (s *Service) Transactions() map[string]txlifecycle.Snapshot {
	s.mu.Lock()
	lifecycles := make(map[string]*txlifecycle.Lifecycle, len(s.lifecycles))
	for id, lc := range s.lifecycles {
		lifecycles[id] = lc
	}
	s.mu.Unlock()

	snapshots := make(map[string]txlifecycle.Snapshot, len(lifecycles))
	for id, lc := range lifecycles {
		snapshots[id] = lc.Snapshot()
	}
	return snapshots
}

// Transaction returns the lifecycle state for one contract
func (s *Service) Transaction(contractID string) (txlifecycle.Snapshot, bool) {
	s.mu.Lock()
	lc, ok := s.lifecycles[contractID]
	s.mu.Unlock()
	if !ok {
		return txlifecycle.Snapshot{}, false
	}
	return lc.Snapshot(), true
}

// ResetTransaction returns a finished lifecycle to idle
func (s *Service) ResetTransaction(contractID string) error {
	s.mu.Lock()
	lc, ok := s.lifecycles[contractID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return lc.Reset()
}

// AddContract starts tracking the program at address
func (s *Service) AddContract(ctx context.Context, address, name string) (*models.Contract, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", txprep.ErrInvalidAddress, address)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = address
	}

	contract, err := s.backend.CreateContract(ctx, models.CreateContractRequest{
		Address: common.HexToAddress(address).Hex(),
		Name:    name,
		ChainID: s.cfg.ChainID,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoWithChain(s.cfg.ChainID, "Added contract %s (%s)", contract.Name, contract.Address)
	s.bus.Emit(contract.ID, updates.KindAdded)
	return contract, nil
}

// RenameContract changes a contract's display name
func (s *Service) RenameContract(ctx context.Context, contractID, name string) (*models.Contract, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	contract, err := s.backend.UpdateContractName(ctx, contractID, name)
	if err != nil {
		return nil, wrapNotFound(contractID, err)
	}

	s.bus.Emit(contractID, updates.KindName)
	return contract, nil
}

// RemoveContract stops tracking a contract and forgets its transaction state
func (s *Service) RemoveContract(ctx context.Context, contractID string) error {
	if err := s.backend.DeleteContract(ctx, contractID); err != nil {
		return wrapNotFound(contractID, err)
	}

	s.mu.Lock()
	delete(s.lifecycles, contractID)
	s.mu.Unlock()

	s.logger.InfoWithChain(s.cfg.ChainID, "Removed contract %s", contractID)
	s.bus.Emit(contractID, updates.KindDeleted)
	return nil
}

// SetAutomation enables or disables automatic bidding up to maxBid (decimal ETH)
func (s *Service) SetAutomation(ctx context.Context, contractID string, settings models.AutomationSettings) (*models.Contract, error) {
	if settings.Enabled {
		if _, err := units.ParseEther(settings.MaxBid); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMaxBid, settings.MaxBid)
		}
	}

	contract, err := s.backend.UpdateAutomation(ctx, contractID, settings)
	if err != nil {
		return nil, wrapNotFound(contractID, err)
	}

	s.bus.Emit(contractID, updates.KindAutomation)
	return contract, nil
}

func (s *Service) getContract(ctx context.Context, contractID string) (*models.Contract, error) {
	contract, err := s.backend.GetContract(ctx, contractID)
	if err != nil {
		return nil, wrapNotFound(contractID, err)
	}
	return contract, nil
}

func wrapNotFound(contractID string, err error) error {
	if errors.Is(err, backend.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrContractNotFound, contractID)
	}
	return err
}
