package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/speedrun-hq/cachekeeper/pkg/models"
)

// ListContracts returns every tracked contract
func (c *Client) ListContracts(ctx context.Context) ([]models.Contract, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/contracts", nil, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	contracts := []models.Contract{}
	if err := decodeList(raw, "contracts", &contracts); err != nil {
		return nil, fmt.Errorf("failed to decode contracts: %w", err)
	}
	return contracts, nil
}

// GetContract returns one contract
func (c *Client) GetContract(ctx context.Context, id string) (*models.Contract, error) {
	var contract models.Contract
	if err := c.do(ctx, http.MethodGet, "/contracts/"+url.PathEscape(id), nil, nil, &contract); err != nil {
		return nil, fmt.Errorf("failed to get contract %s: %w", id, err)
	}
	return &contract, nil
}

// CreateContract starts tracking a contract
func (c *Client) CreateContract(ctx context.Context, req models.CreateContractRequest) (*models.Contract, error) {
	var contract models.Contract
	if err := c.do(ctx, http.MethodPost, "/contracts", nil, req, &contract); err != nil {
		return nil, fmt.Errorf("failed to create contract %s: %w", req.Address, err)
	}
	return &contract, nil
}

// UpdateContractName renames a contract
func (c *Client) UpdateContractName(ctx context.Context, id, name string) (*models.Contract, error) {
	var contract models.Contract
	body := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPatch, "/contracts/"+url.PathEscape(id), nil, body, &contract); err != nil {
		return nil, fmt.Errorf("failed to rename contract %s: %w", id, err)
	}
	return &contract, nil
}

// UpdateAutomation replaces a contract's automation settings
func (c *Client) UpdateAutomation(ctx context.Context, id string, settings models.AutomationSettings) (*models.Contract, error) {
	var contract models.Contract
	if err := c.do(ctx, http.MethodPut, "/contracts/"+url.PathEscape(id)+"/automation", nil, settings, &contract); err != nil {
		return nil, fmt.Errorf("failed to update automation for contract %s: %w", id, err)
	}
	return &contract, nil
}

// DeleteContract stops tracking a contract
func (c *Client) DeleteContract(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/contracts/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete contract %s: %w", id, err)
	}
	return nil
}

// ListBids returns the bids recorded for a contract, newest first
func (c *Client) ListBids(ctx context.Context, contractID string) ([]models.Bid, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/contracts/"+url.PathEscape(contractID)+"/bids", nil, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to list bids for contract %s: %w", contractID, err)
	}
	bids := []models.Bid{}
	if err := decodeList(raw, "bids", &bids); err != nil {
		return nil, fmt.Errorf("failed to decode bids: %w", err)
	}
	return bids, nil
}

// RecordBid reports a confirmed bid transaction
func (c *Client) RecordBid(ctx context.Context, contractID string, req models.RecordBidRequest) (*models.Bid, error) {
	var bid models.Bid
	if err := c.do(ctx, http.MethodPost, "/contracts/"+url.PathEscape(contractID)+"/bids", nil, req, &bid); err != nil {
		return nil, fmt.Errorf("failed to record bid %s: %w", req.TxHash, err)
	}
	return &bid, nil
}

// GetSuggestedBid returns the backend's bid recommendation for a program address
func (c *Client) GetSuggestedBid(ctx context.Context, address string) (*models.SuggestedBid, error) {
	var suggestion models.SuggestedBid
	query := url.Values{"address": []string{address}}
	if err := c.do(ctx, http.MethodGet, "/bids/suggested", query, nil, &suggestion); err != nil {
		return nil, fmt.Errorf("failed to get suggested bid for %s: %w", address, err)
	}
	return &suggestion, nil
}
