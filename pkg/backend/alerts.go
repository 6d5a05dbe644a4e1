package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/speedrun-hq/cachekeeper/pkg/models"
)

// GetAlertPreferences returns the user's alert channel settings
func (c *Client) GetAlertPreferences(ctx context.Context) (*models.AlertPreferences, error) {
	var prefs models.AlertPreferences
	if err := c.do(ctx, http.MethodGet, "/alerts/preferences", nil, nil, &prefs); err != nil {
		return nil, fmt.Errorf("failed to get alert preferences: %w", err)
	}
	return &prefs, nil
}

// SaveAlertPreferences creates or replaces the user's alert channel settings
func (c *Client) SaveAlertPreferences(ctx context.Context, prefs *models.AlertPreferences) error {
	if err := c.do(ctx, http.MethodPut, "/alerts/preferences", nil, prefs, nil); err != nil {
		return fmt.Errorf("failed to save alert preferences: %w", err)
	}
	return nil
}

// SendTestAlert asks the backend to deliver a test message on channel
func (c *Client) SendTestAlert(ctx context.Context, channel models.Channel) error {
	body := map[string]string{"channel": string(channel)}
	if err := c.do(ctx, http.MethodPost, "/alerts/test", nil, body, nil); err != nil {
		return fmt.Errorf("failed to send test alert on %s: %w", channel, err)
	}
	return nil
}
