package config

import (
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/speedrun-hq/cachekeeper/pkg/logger"
)

// Config holds the configuration for the cachekeeper service
type Config struct {
	APIBaseURL          string
	ChainID             int
	RPCURL              string
	CacheManagerAddress string
	PrivateKey          string
	Gas                 GasConfig
	Reconcile           ReconcileConfig
	Tx                  TxConfig
	Automation          AutomationConfig
	GasWatchInterval    time.Duration
	MetricsPort         string
	CircuitBreaker      CircuitBreakerConfig
	BackendRateLimit    float64
	LoggerConfig        LoggerConfig
}

// GasConfig holds the gas admission policy settings
type GasConfig struct {
	MaxGasPrice *big.Int // wei
	GasLimit    uint64
}

// ReconcileConfig holds the post-confirmation polling settings
type ReconcileConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

// TxConfig holds the transaction lifecycle settings
type TxConfig struct {
	AutoResetDelay time.Duration
	Timeout        time.Duration
}

// AutomationConfig holds the bid automation settings
type AutomationConfig struct {
	Enabled          bool
	Interval         time.Duration
	BidBufferPercent int
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	apiBaseURL, err := GetEnvAPIBaseURL()
	if err != nil {
		return nil, err
	}

	chainID, err := GetEnvChainID()
	if err != nil {
		return nil, err
	}

	rpcURL, err := GetEnvRPCURL(chainID)
	if err != nil {
		return nil, err
	}

	cacheManagerAddress, err := GetEnvCacheManagerAddress(chainID)
	if err != nil {
		return nil, err
	}

	maxGasPrice, err := GetEnvMaxGasPrice()
	if err != nil {
		return nil, err
	}

	gasLimit, err := GetEnvGasLimit(chainID)
	if err != nil {
		return nil, err
	}

	reconcileAttempts, err := GetEnvReconcileMaxAttempts()
	if err != nil {
		return nil, err
	}

	reconcileInterval, err := GetEnvReconcileInterval()
	if err != nil {
		return nil, err
	}

	autoResetDelay, err := GetEnvTxAutoResetDelay()
	if err != nil {
		return nil, err
	}

	txTimeout, err := GetEnvTxTimeout()
	if err != nil {
		return nil, err
	}

	automationEnabled, err := GetEnvAutomationEnabled()
	if err != nil {
		return nil, err
	}

	automationInterval, err := GetEnvAutomationInterval()
	if err != nil {
		return nil, err
	}

	bidBuffer, err := GetEnvAutomationBidBufferPercent()
	if err != nil {
		return nil, err
	}

	gasWatchInterval, err := GetEnvGasWatchInterval()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	rateLimit, err := GetEnvBackendRateLimit()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIBaseURL:          apiBaseURL,
		ChainID:             chainID,
		RPCURL:              rpcURL,
		CacheManagerAddress: cacheManagerAddress,
		PrivateKey:          os.Getenv("PRIVATE_KEY"),
		Gas: GasConfig{
			MaxGasPrice: maxGasPrice,
			GasLimit:    gasLimit,
		},
		Reconcile: ReconcileConfig{
			MaxAttempts: reconcileAttempts,
			Interval:    reconcileInterval,
		},
		Tx: TxConfig{
			AutoResetDelay: autoResetDelay,
			Timeout:        txTimeout,
		},
		Automation: AutomationConfig{
			Enabled:          automationEnabled,
			Interval:         automationInterval,
			BidBufferPercent: bidBuffer,
		},
		GasWatchInterval: gasWatchInterval,
		MetricsPort:      metricsPort,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		BackendRateLimit: rateLimit,
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("RPC_URL for chain %d is required", cfg.ChainID)
	}
	if cfg.CacheManagerAddress == "" {
		return fmt.Errorf("CACHE_MANAGER_ADDRESS for chain %d is required", cfg.ChainID)
	}
	if cfg.Automation.Enabled && cfg.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY environment variable is required when AUTOMATION_ENABLED is true")
	}
	return nil
}
