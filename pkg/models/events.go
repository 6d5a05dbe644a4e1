package models

import "time"

// BlockchainEvent is a CacheManager event indexed by the backend
type BlockchainEvent struct {
	ID              string                 `json:"id"`
	EventName       string                 `json:"event_name"`
	ContractAddress string                 `json:"contract_address"`
	TxHash          string                 `json:"tx_hash"`
	BlockNumber     uint64                 `json:"block_number"`
	LogIndex        uint                   `json:"log_index"`
	Data            map[string]interface{} `json:"data,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
}

// EventQuery filters and pages the event list. Zero values are omitted.
type EventQuery struct {
	Page            int
	PageSize        int
	SortBy          string
	SortOrder       string // asc or desc
	EventName       string
	ContractAddress string
	FromBlock       uint64
}

// EventPage is one page of events
type EventPage struct {
	Events     []BlockchainEvent `json:"events"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalCount int               `json:"total_count"`
	TotalPages int               `json:"total_pages"`
}

// CacheMetrics summarises cache occupancy and bidding activity
type CacheMetrics struct {
	TotalContracts  int             `json:"total_contracts"`
	CachedContracts int             `json:"cached_contracts"`
	CacheSizeBytes  uint64          `json:"cache_size_bytes"`
	QueueSizeBytes  uint64          `json:"queue_size_bytes"`
	FillPercent     float64         `json:"fill_percent"`
	AverageBid      string          `json:"average_bid"`
	BidTrends       []BidTrendPoint `json:"bid_trends,omitempty"`
}

// BidTrendPoint is the average bid over one period
type BidTrendPoint struct {
	Period     time.Time `json:"period"`
	AverageBid string    `json:"average_bid"`
	BidCount   int       `json:"bid_count"`
}
