// Package notify decides which alert channels can deliver and persists the
// user's channel preferences.
package notify

import (
	"strings"

	"github.com/speedrun-hq/cachekeeper/pkg/models"
)

// Preferences are the per-channel alert settings
type Preferences = models.AlertPreferences

// ValidationResult sorts every channel into exactly one bucket
type ValidationResult struct {
	ConfiguredChannels        []models.Channel `json:"configured_channels"`
	EnabledButInvalidChannels []models.Channel `json:"enabled_but_invalid_channels"`
	MissingChannels           []models.Channel `json:"missing_channels"`
	IsValid                   bool             `json:"is_valid"`
}

// isConfigured: enabled with a destination
func isConfigured(s *models.ChannelSetting) bool {
	return s != nil && s.Enabled && strings.TrimSpace(s.Destination) != ""
}

// isEnabledButInvalid: enabled without a destination
func isEnabledButInvalid(s *models.ChannelSetting) bool {
	return s != nil && s.Enabled && strings.TrimSpace(s.Destination) == ""
}

// Validate evaluates prefs. A nil prefs or nil channel entry counts as not configured.
func Validate(prefs *Preferences) ValidationResult {
	result := ValidationResult{
		ConfiguredChannels:        []models.Channel{},
		EnabledButInvalidChannels: []models.Channel{},
		MissingChannels:           []models.Channel{},
	}

	for _, channel := range models.Channels {
		setting := prefs.Setting(channel)
		switch {
		case isConfigured(setting):
			result.ConfiguredChannels = append(result.ConfiguredChannels, channel)
		case isEnabledButInvalid(setting):
			result.EnabledButInvalidChannels = append(result.EnabledButInvalidChannels, channel)
		default:
			result.MissingChannels = append(result.MissingChannels, channel)
		}
	}

	result.IsValid = len(result.ConfiguredChannels) > 0
	return result
}
