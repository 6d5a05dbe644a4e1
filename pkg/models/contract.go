package models

import (
	"strings"
	"time"
)

// Contract is a program tracked by the dashboard backend
type Contract struct {
	ID         string             `json:"id"`
	Address    string             `json:"address"`
	Name       string             `json:"name"`
	ChainID    int                `json:"chain_id"`
	IsCached   bool               `json:"is_cached"`
	LastBid    *Bid               `json:"last_bid,omitempty"`
	Automation AutomationSettings `json:"automation"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// HasBid reports whether the contract's latest bid came from txHash and the
// event indexer has processed it. A bid only recorded through the API does not count.
func (c *Contract) HasBid(txHash string) bool {
	return c.LastBid != nil && c.LastBid.Indexed && strings.EqualFold(c.LastBid.TxHash, txHash)
}

// AutomationSettings controls automatic re-bidding. MaxBid is a decimal ETH string.
type AutomationSettings struct {
	Enabled bool   `json:"enabled"`
	MaxBid  string `json:"max_bid"`
}

// CreateContractRequest is the body for adding a contract
type CreateContractRequest struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	ChainID int    `json:"chain_id"`
}

// Bid is a placeBid call. Amount is in wei. Indexed is set by the backend once
// its indexer has processed the on-chain event; bids recorded through the API
// start out unindexed.
type Bid struct {
	ID              string    `json:"id"`
	ContractID      string    `json:"contract_id"`
	ContractAddress string    `json:"contract_address"`
	Bidder          string    `json:"bidder"`
	Amount          string    `json:"amount"`
	TxHash          string    `json:"tx_hash"`
	BlockNumber     uint64    `json:"block_number"`
	Indexed         bool      `json:"indexed"`
	CreatedAt       time.Time `json:"created_at"`
}

// RecordBidRequest reports a confirmed bid to the backend ahead of indexing
type RecordBidRequest struct {
	Amount      string `json:"amount"`
	TxHash      string `json:"tx_hash"`
	Bidder      string `json:"bidder"`
	BlockNumber uint64 `json:"block_number"`
	Automated   bool   `json:"automated"`
}

// SuggestedBid is the backend's recommendation for keeping a program cached
type SuggestedBid struct {
	ContractAddress string `json:"contract_address"`
	MinBid          string `json:"min_bid"`
	SuggestedBid    string `json:"suggested_bid"`
	Confidence      string `json:"confidence,omitempty"`
}
