package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/speedrun-hq/cachekeeper/pkg/models"
)

// ListEvents returns one page of indexed CacheManager events
func (c *Client) ListEvents(ctx context.Context, q models.EventQuery) (*models.EventPage, error) {
	var page models.EventPage
	if err := c.do(ctx, http.MethodGet, "/events", eventQueryValues(q), nil, &page); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	if page.Events == nil {
		page.Events = []models.BlockchainEvent{}
	}
	if page.TotalCount == 0 {
		c.logger.Debug("No events found (page %d/%d)", page.Page, page.TotalPages)
	}
	return &page, nil
}

// GetCacheMetrics returns occupancy and bid statistics
func (c *Client) GetCacheMetrics(ctx context.Context) (*models.CacheMetrics, error) {
	var m models.CacheMetrics
	if err := c.do(ctx, http.MethodGet, "/metrics/cache", nil, nil, &m); err != nil {
		return nil, fmt.Errorf("failed to get cache metrics: %w", err)
	}
	return &m, nil
}

func eventQueryValues(q models.EventQuery) url.Values {
	values := url.Values{}
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		values.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if q.SortBy != "" {
		values.Set("sort_by", q.SortBy)
	}
	if q.SortOrder != "" {
		values.Set("sort_order", q.SortOrder)
	}
	if q.EventName != "" {
		values.Set("event_name", q.EventName)
	}
	if q.ContractAddress != "" {
		values.Set("contract_address", q.ContractAddress)
	}
	if q.FromBlock > 0 {
		values.Set("from_block", strconv.FormatUint(q.FromBlock, 10))
	}
	return values
}
