package bidding

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/speedrun-hq/cachekeeper/pkg/backend"
	"github.com/speedrun-hq/cachekeeper/pkg/gas"
	"github.com/speedrun-hq/cachekeeper/pkg/models"
	"github.com/speedrun-hq/cachekeeper/pkg/reconcile"
	"github.com/speedrun-hq/cachekeeper/pkg/txprep"
	"github.com/speedrun-hq/cachekeeper/pkg/updates"
)

const (
	testCacheManager = "0x0C9043D042aB52cFa8d0207459260040Cca54253"
	programA         = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	programB         = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type fakeChain struct {
	mu            sync.Mutex
	gasPrice      *big.Int
	minBids       map[common.Address]*big.Int
	sendErr       error
	receiptStatus uint64
	sent          []txprep.Descriptor
	invalidated   []common.Address
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		gasPrice:      big.NewInt(100_000_000),
		minBids:       map[common.Address]*big.Int{},
		receiptStatus: types.ReceiptStatusSuccessful,
	}
}

func (f *fakeChain) GasPrice(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeChain) SendCall(ctx context.Context, call txprep.Descriptor) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.sent = append(f.sent, call)
	return common.BigToHash(big.NewInt(int64(len(f.sent)))), nil
}

func (f *fakeChain) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &types.Receipt{TxHash: hash, Status: f.receiptStatus, BlockNumber: big.NewInt(99)}, nil
}

func (f *fakeChain) MinBid(ctx context.Context, program common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bid, ok := f.minBids[program]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(bid), nil
}

func (f *fakeChain) InvalidateMinBid(program common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, program)
}

func (f *fakeChain) From() common.Address {
	return common.HexToAddress("0x9999999999999999999999999999999999999999")
}

func (f *fakeChain) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeBackend struct {
	mu        sync.Mutex
	contracts map[string]*models.Contract
	// indexAfter is how many reconciliation reads miss a recorded bid; -1 never indexes
	indexAfter int
	pending    map[string]*models.Bid
	recorded   []models.RecordBidRequest
	nextID     int
}

func newFakeBackend(contracts ...models.Contract) *fakeBackend {
	b := &fakeBackend{contracts: map[string]*models.Contract{}, pending: map[string]*models.Bid{}}
	for i := range contracts {
		c := contracts[i]
		b.contracts[c.ID] = &c
	}
	return b
}

func (b *fakeBackend) ListContracts(ctx context.Context) ([]models.Contract, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := make([]models.Contract, 0, len(b.contracts))
	for _, c := range b.contracts {
		list = append(list, *c)
	}
	return list, nil
}

func (b *fakeBackend) GetContract(ctx context.Context, id string) (*models.Contract, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.contracts[id]
	if !ok {
		return nil, fmt.Errorf("failed to get contract %s: %w", id, backend.ErrNotFound)
	}
	if bid, ok := b.pending[id]; ok && b.indexAfter >= 0 {
		if b.indexAfter == 0 {
			indexed := *bid
			indexed.Indexed = true
			c.LastBid = &indexed
			delete(b.pending, id)
		} else {
			b.indexAfter--
		}
	}
	copied := *c
	return &copied, nil
}

func (b *fakeBackend) CreateContract(ctx context.Context, req models.CreateContractRequest) (*models.Contract, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	c := &models.Contract{ID: fmt.Sprintf("new-%d", b.nextID), Address: req.Address, Name: req.Name, ChainID: req.ChainID}
	b.contracts[c.ID] = c
	copied := *c
	return &copied, nil
}

func (b *fakeBackend) UpdateContractName(ctx context.Context, id, name string) (*models.Contract, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.contracts[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	c.Name = name
	copied := *c
	return &copied, nil
}

func (b *fakeBackend) UpdateAutomation(ctx context.Context, id string, settings models.AutomationSettings) (*models.Contract, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.contracts[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	c.Automation = settings
	copied := *c
	return &copied, nil
}

func (b *fakeBackend) DeleteContract(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.contracts[id]; !ok {
		return backend.ErrNotFound
	}
	delete(b.contracts, id)
	return nil
}

func (b *fakeBackend) RecordBid(ctx context.Context, contractID string, req models.RecordBidRequest) (*models.Bid, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recorded = append(b.recorded, req)
	bid := &models.Bid{ContractID: contractID, Amount: req.Amount, TxHash: req.TxHash, BlockNumber: req.BlockNumber}
	b.pending[contractID] = bid
	// the recorded bid is visible right away, ahead of indexing
	if c, ok := b.contracts[contractID]; ok {
		recorded := *bid
		c.LastBid = &recorded
	}
	return bid, nil
}

type signalRecorder struct {
	mu      sync.Mutex
	signals []updates.Signal
}

func (r *signalRecorder) handle(s updates.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
}

func (r *signalRecorder) all() []updates.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]updates.Signal(nil), r.signals...)
}

func newTestService(b *fakeBackend, chain *fakeChain) (*Service, *signalRecorder) {
	bus := updates.NewBus(nil)
	recorder := &signalRecorder{}
	bus.Subscribe(recorder.handle)

	svc := NewService(Config{
		ChainID:             421614,
		CacheManagerAddress: common.HexToAddress(testCacheManager),
		Policy:              gas.Policy{MaxGasPrice: big.NewInt(1_000_000_000), GasLimit: 1_500_000},
	}, b, chain, bus, reconcile.NewPoller(5, time.Millisecond, nil), nil)
	return svc, recorder
}

func contractA() models.Contract {
	return models.Contract{ID: "c1", Address: programA, Name: "alpha", ChainID: 421614}
}
