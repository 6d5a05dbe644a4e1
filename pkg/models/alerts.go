package models

// Channel is an alert delivery mechanism
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelSlack    Channel = "slack"
	ChannelWebhook  Channel = "webhook"
)

// Channels is the fixed channel set in display order
var Channels = []Channel{ChannelTelegram, ChannelSlack, ChannelWebhook}

// ChannelSetting is the user's setting for one channel
type ChannelSetting struct {
	Enabled     bool   `json:"enabled"`
	Destination string `json:"destination"`
}

// AlertPreferences holds per-channel settings. A nil entry means never configured.
type AlertPreferences struct {
	Telegram *ChannelSetting `json:"telegram,omitempty"`
	Slack    *ChannelSetting `json:"slack,omitempty"`
	Webhook  *ChannelSetting `json:"webhook,omitempty"`
}

// Setting returns the setting for channel, or nil
func (p *AlertPreferences) Setting(channel Channel) *ChannelSetting {
	if p == nil {
		return nil
	}
	switch channel {
	case ChannelTelegram:
		return p.Telegram
	case ChannelSlack:
		return p.Slack
	case ChannelWebhook:
		return p.Webhook
	}
	return nil
}

// AuthNonce is issued by the backend for a login signature
type AuthNonce struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

// LoginRequest exchanges a signed nonce for a token
type LoginRequest struct {
	Address   string `json:"address"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

// LoginResponse carries the session token
type LoginResponse struct {
	Token string `json:"token"`
}
