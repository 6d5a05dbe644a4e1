package config

import (
	"testing"
	"time"

	"github.com/speedrun-hq/cachekeeper/pkg/chains"
	"github.com/speedrun-hq/cachekeeper/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultAPIBaseURL, cfg.APIBaseURL)
	assert.Equal(t, DefaultChainID, cfg.ChainID)
	assert.Equal(t, chains.GetDefaultRPCURL(DefaultChainID), cfg.RPCURL)
	assert.Equal(t, chains.GetCacheManagerAddress(DefaultChainID), cfg.CacheManagerAddress)
	assert.Equal(t, "1000000000", cfg.Gas.MaxGasPrice.String())
	assert.Equal(t, chains.PlaceBidDefaultGasLimit[DefaultChainID], cfg.Gas.GasLimit)
	assert.Equal(t, 20, cfg.Reconcile.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Reconcile.Interval)
	assert.Equal(t, time.Duration(0), cfg.Tx.AutoResetDelay)
	assert.Equal(t, time.Duration(0), cfg.Tx.Timeout)
	assert.True(t, cfg.Automation.Enabled)
	assert.Equal(t, logger.InfoLevel, cfg.LoggerConfig.Level)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://localhost:3000/")
	t.Setenv("CHAIN_ID", "421614")
	t.Setenv("MAX_GAS_PRICE_GWEI", "0.1")
	t.Setenv("RECONCILE_MAX_ATTEMPTS", "5")
	t.Setenv("RECONCILE_INTERVAL", "500ms")
	t.Setenv("TX_AUTO_RESET_DELAY", "10s")
	t.Setenv("AUTOMATION_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", cfg.APIBaseURL)
	assert.Equal(t, 421614, cfg.ChainID)
	assert.Equal(t, chains.GetCacheManagerAddress(421614), cfg.CacheManagerAddress)
	assert.Equal(t, "100000000", cfg.Gas.MaxGasPrice.String())
	assert.Equal(t, 5, cfg.Reconcile.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconcile.Interval)
	assert.Equal(t, 10*time.Second, cfg.Tx.AutoResetDelay)
	assert.False(t, cfg.Automation.Enabled)
	assert.Equal(t, logger.DebugLevel, cfg.LoggerConfig.Level)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad url", key: "API_BASE_URL", value: "not a url"},
		{name: "unsupported chain", key: "CHAIN_ID", value: "56"},
		{name: "negative gas price", key: "MAX_GAS_PRICE_GWEI", value: "-1"},
		{name: "zero attempts", key: "RECONCILE_MAX_ATTEMPTS", value: "0"},
		{name: "zero interval", key: "RECONCILE_INTERVAL", value: "0s"},
		{name: "bad bool", key: "AUTOMATION_ENABLED", value: "yes"},
		{name: "bad address", key: "CACHE_MANAGER_ADDRESS", value: "0x123"},
		{name: "bad level", key: "LOG_LEVEL", value: "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUTOMATION_ENABLED", "false")
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestValidateConfigRequiresKeyForAutomation(t *testing.T) {
	t.Setenv("AUTOMATION_ENABLED", "true")
	t.Setenv("PRIVATE_KEY", "")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "PRIVATE_KEY")
}
