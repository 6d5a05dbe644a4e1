package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/speedrun-hq/cachekeeper/pkg/logger"
	"github.com/speedrun-hq/cachekeeper/pkg/models"
)

var (
	// ErrNoUsableChannel means no channel is both enabled and addressed
	ErrNoUsableChannel = errors.New("no usable notification channel")
	// ErrChannelNotConfigured means a test was requested for a channel that cannot deliver
	ErrChannelNotConfigured = errors.New("notification channel not configured")
)

// Store persists preferences and triggers test deliveries
type Store interface {
	GetAlertPreferences(ctx context.Context) (*models.AlertPreferences, error)
	SaveAlertPreferences(ctx context.Context, prefs *models.AlertPreferences) error
	SendTestAlert(ctx context.Context, channel models.Channel) error
}

// Manager validates preferences before they reach the store
type Manager struct {
	store  Store
	logger logger.Logger
}

// NewManager creates a new Manager
func NewManager(store Store, log logger.Logger) *Manager {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Manager{store: store, logger: log}
}

// Load fetches the stored preferences with their validation
func (m *Manager) Load(ctx context.Context) (*Preferences, ValidationResult, error) {
	prefs, err := m.store.GetAlertPreferences(ctx)
	if err != nil {
		return nil, ValidationResult{}, fmt.Errorf("failed to load alert preferences: %w", err)
	}
	return prefs, Validate(prefs), nil
}

// Save persists prefs when at least one channel is usable. The validation result is
// returned in both cases so callers can point at the broken channels.
func (m *Manager) Save(ctx context.Context, prefs *Preferences) (ValidationResult, error) {
	result := Validate(prefs)
	if !result.IsValid {
		return result, fmt.Errorf("%w: enabled without destination: %s", ErrNoUsableChannel, joinChannels(result.EnabledButInvalidChannels))
	}
	if len(result.EnabledButInvalidChannels) > 0 {
		m.logger.Notice("Saving alert preferences with unaddressed channels: %s", joinChannels(result.EnabledButInvalidChannels))
	}

	if err := m.store.SaveAlertPreferences(ctx, prefs); err != nil {
		return result, fmt.Errorf("failed to save alert preferences: %w", err)
	}
	m.logger.Info("Saved alert preferences for %s", joinChannels(result.ConfiguredChannels))
	return result, nil
}

// SendTest asks the backend to deliver a test alert on every configured channel.
// All channels are attempted; the returned error joins the individual failures.
func (m *Manager) SendTest(ctx context.Context, prefs *Preferences) error {
	result := Validate(prefs)
	if !result.IsValid {
		return ErrNoUsableChannel
	}

	var errs []error
	for _, channel := range result.ConfiguredChannels {
		if err := m.store.SendTestAlert(ctx, channel); err != nil {
			m.logger.Error("Test alert on %s failed: %v", channel, err)
			errs = append(errs, fmt.Errorf("%s: %w", channel, err))
			continue
		}
		m.logger.Debug("Test alert sent on %s", channel)
	}
	return errors.Join(errs...)
}

// SendTestChannel sends a test alert on a single channel
func (m *Manager) SendTestChannel(ctx context.Context, prefs *Preferences, channel models.Channel) error {
	if !isConfigured(prefs.Setting(channel)) {
		return fmt.Errorf("%w: %s", ErrChannelNotConfigured, channel)
	}
	return m.store.SendTestAlert(ctx, channel)
}

func joinChannels(channels []models.Channel) string {
	if len(channels) == 0 {
		return "none"
	}
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
