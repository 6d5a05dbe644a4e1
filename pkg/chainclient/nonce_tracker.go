package chainclient

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/cachekeeper/pkg/logger"
)

const nonceResyncInterval = 5 * time.Minute

// NonceSource reports the account's next nonce including the mempool
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceTracker allocates nonces locally so several bids can be signed from one key
// without waiting for each other to be mined.
type NonceTracker struct {
	mu sync.Mutex

	source  NonceSource
	address common.Address
	logger  logger.Logger

	next     uint64
	lastSync time.Time
	// outstanding maps allocated nonces to their hash; the zero hash means reserved
	// but not yet broadcast
	outstanding map[uint64]common.Hash
	now         func() time.Time

	// released holds nonces below next whose send failed, lowest first
	released []uint64
}

// NewNonceTracker creates a tracker for address
func NewNonceTracker(source NonceSource, address common.Address, log logger.Logger) *NonceTracker {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &NonceTracker{
		source:      source,
		address:     address,
		logger:      log,
		outstanding: make(map[uint64]common.Hash),
		now:         time.Now,
	}
}

// Next reserves the lowest free nonce. Released gaps are handed out before new
// nonces. The chain is consulted on first use and when nothing is outstanding and
// the last sync is stale.
func (nt *NonceTracker) Next(ctx context.Context) (uint64, error) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	if nt.lastSync.IsZero() || (len(nt.outstanding) == 0 && nt.now().Sub(nt.lastSync) > nonceResyncInterval) {
		if err := nt.syncLocked(ctx); err != nil {
			return 0, err
		}
	}

	var nonce uint64
	if len(nt.released) > 0 {
		nonce = nt.released[0]
		nt.released = nt.released[1:]
		nt.logger.Debug("Reusing released nonce %d for %s", nonce, nt.address.Hex())
	} else {
		nonce = nt.next
		nt.next++
	}
	nt.outstanding[nonce] = common.Hash{}
	return nonce, nil
}

// Track records the broadcast hash for nonce
func (nt *NonceTracker) Track(nonce uint64, hash common.Hash) {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	nt.outstanding[nonce] = hash
}

// Confirm forgets the nonce used by hash. It reports whether hash was tracked.
func (nt *NonceTracker) Confirm(hash common.Hash) bool {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	for nonce, h := range nt.outstanding {
		if h == hash {
			delete(nt.outstanding, nonce)
			return true
		}
	}
	return false
}

// Release returns a nonce whose transaction never reached the mempool. Releasing
// the most recent nonce rewinds the counter; an older one is kept as a gap and
// handed out by the next call to Next.
func (nt *NonceTracker) Release(nonce uint64) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	if _, ok := nt.outstanding[nonce]; !ok {
		return
	}
	delete(nt.outstanding, nonce)

	if nonce+1 != nt.next {
		idx := sort.Search(len(nt.released), func(i int) bool { return nt.released[i] >= nonce })
		nt.released = append(nt.released, 0)
		copy(nt.released[idx+1:], nt.released[idx:])
		nt.released[idx] = nonce
		nt.logger.Debug("Nonce %d for %s released out of order, keeping it for reuse", nonce, nt.address.Hex())
		return
	}

	nt.next = nonce
	// released gaps directly below the rewound counter collapse into it
	for n := len(nt.released); n > 0 && nt.released[n-1]+1 == nt.next; n-- {
		nt.next = nt.released[n-1]
		nt.released = nt.released[:n-1]
	}
}

// Outstanding returns the number of allocated, unconfirmed nonces
func (nt *NonceTracker) Outstanding() int {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	return len(nt.outstanding)
}

// Sync reloads the pending nonce from the chain
func (nt *NonceTracker) Sync(ctx context.Context) error {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	return nt.syncLocked(ctx)
}

func (nt *NonceTracker) syncLocked(ctx context.Context) error {
	nonce, err := nt.source.PendingNonceAt(ctx, nt.address)
	if err != nil {
		return fmt.Errorf("failed to get pending nonce: %w", err)
	}
	// a lagging node must not move us backwards over nonces we already handed out
	if nonce > nt.next || len(nt.outstanding) == 0 {
		if nonce != nt.next {
			nt.logger.Debug("Updating nonce for %s: %d -> %d", nt.address.Hex(), nt.next, nonce)
		}
		nt.next = nonce
	}
	// gaps the chain has moved past were filled elsewhere
	kept := nt.released[:0]
	for _, n := range nt.released {
		if n >= nonce && n < nt.next {
			kept = append(kept, n)
		}
	}
	nt.released = kept
	nt.lastSync = nt.now()
	return nil
}
