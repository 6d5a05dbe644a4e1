package chainclient

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MinBidCache keeps recent getMinBid results to avoid repeated eth_calls
type MinBidCache struct {
	mu       sync.RWMutex
	cache    map[common.Address]*cachedBid
	cacheTTL time.Duration
	now      func() time.Time
}

type cachedBid struct {
	bid       *big.Int
	timestamp time.Time
}

// NewMinBidCache creates a new min bid cache
func NewMinBidCache(cacheTTL time.Duration) *MinBidCache {
	return &MinBidCache{
		cache:    make(map[common.Address]*cachedBid),
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Get returns a copy of the cached bid if it has not expired
func (c *MinBidCache) Get(program common.Address) (*big.Int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, exists := c.cache[program]
	if !exists || c.now().Sub(cached.timestamp) > c.cacheTTL {
		return nil, false
	}
	return new(big.Int).Set(cached.bid), true
}

// Set stores a bid with the current timestamp
func (c *MinBidCache) Set(program common.Address, bid *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[program] = &cachedBid{
		bid:       new(big.Int).Set(bid),
		timestamp: c.now(),
	}
}

// Invalidate removes one entry
func (c *MinBidCache) Invalidate(program common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, program)
}

// Clear removes all cached entries
func (c *MinBidCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[common.Address]*cachedBid)
}

// Len returns the number of entries, expired ones included
func (c *MinBidCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
