package chainclient

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/cachekeeper/pkg/metrics"
	"github.com/speedrun-hq/cachekeeper/pkg/units"
)

// CacheState is a snapshot of the CacheManager's global parameters
type CacheState struct {
	CacheSize uint64 `json:"cache_size"`
	QueueSize uint64 `json:"queue_size"`
	Decay     uint64 `json:"decay"`
	Paused    bool   `json:"paused"`
}

// FillPercent returns how full the cache is, 0 to 100
func (s CacheState) FillPercent() float64 {
	if s.CacheSize == 0 {
		return 0
	}
	return float64(s.QueueSize) * 100 / float64(s.CacheSize)
}

// MinBid returns the minimum bid in wei for keeping program cached. Results are
// cached for a short TTL.
func (c *Client) MinBid(ctx context.Context, program common.Address) (*big.Int, error) {
	if bid, ok := c.minBids.Get(program); ok {
		return bid, nil
	}

	bid, err := c.cacheManager.GetMinBid(&bind.CallOpts{Context: ctx}, program)
	if err != nil {
		return nil, fmt.Errorf("failed to read min bid for %s: %w", program.Hex(), err)
	}
	c.minBids.Set(program, bid)

	if eth, err := strconv.ParseFloat(units.FormatEther(bid), 64); err == nil {
		metrics.MinBid.WithLabelValues(strconv.Itoa(c.ChainID), program.Hex()).Set(eth)
	}
	return new(big.Int).Set(bid), nil
}

// InvalidateMinBid drops the cached min bid for program
func (c *Client) InvalidateMinBid(program common.Address) {
	c.minBids.Invalidate(program)
}

// CacheState reads the CacheManager's size, queue, decay and pause flag
func (c *Client) CacheState(ctx context.Context) (CacheState, error) {
	opts := &bind.CallOpts{Context: ctx}
	var state CacheState
	var err error

	if state.CacheSize, err = c.cacheManager.CacheSize(opts); err != nil {
		return CacheState{}, fmt.Errorf("failed to read cache size: %w", err)
	}
	if state.QueueSize, err = c.cacheManager.QueueSize(opts); err != nil {
		return CacheState{}, fmt.Errorf("failed to read queue size: %w", err)
	}
	if state.Decay, err = c.cacheManager.Decay(opts); err != nil {
		return CacheState{}, fmt.Errorf("failed to read decay: %w", err)
	}
	if state.Paused, err = c.cacheManager.IsPaused(opts); err != nil {
		return CacheState{}, fmt.Errorf("failed to read paused flag: %w", err)
	}
	return state, nil
}
