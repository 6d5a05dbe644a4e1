package config

import (
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/cachekeeper/pkg/chains"
	"github.com/speedrun-hq/cachekeeper/pkg/logger"
	"github.com/speedrun-hq/cachekeeper/pkg/units"
)

const (
	// DefaultAPIBaseURL defines the default base URL of the cache backend API
	DefaultAPIBaseURL = "https://api.cachekeeper.xyz"

	// DefaultChainID defines the default chain, Arbitrum One
	DefaultChainID = 42161

	// DefaultMaxGasPriceGwei defines the gas price ceiling in gwei
	DefaultMaxGasPriceGwei = "1"

	// DefaultReconcileMaxAttempts defines how many times the backend is polled after a confirmed transaction
	DefaultReconcileMaxAttempts = 20

	// DefaultReconcileInterval defines the fixed delay between reconciliation attempts
	DefaultReconcileInterval = 3 * time.Second

	// DefaultTxAutoResetDelay defines the delay before a finished transaction returns to idle, 0 disables it
	DefaultTxAutoResetDelay = 0

	// DefaultTxTimeout defines the pending transaction timeout, 0 waits forever
	DefaultTxTimeout = 0

	// DefaultAutomationEnabled defines whether bid automation runs
	DefaultAutomationEnabled = true

	// DefaultAutomationInterval defines how often automated contracts are checked
	DefaultAutomationInterval = 60 * time.Second

	// DefaultAutomationBidBufferPercent defines how much is added on top of the minimum bid
	DefaultAutomationBidBufferPercent = 5

	// DefaultGasWatchInterval defines how often the gas price is refreshed
	DefaultGasWatchInterval = 15 * time.Second

	// DefaultMetricsPort defines the default port for the metrics server
	DefaultMetricsPort = "8080"

	// DefaultCircuitBreakerEnabled defines whether the backend circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 5 * time.Second

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 15 * time.Second

	// DefaultBackendRateLimit defines the number of backend requests allowed per second
	DefaultBackendRateLimit = 10.0

	// DefaultLogLevel defines the minimum level that is printed
	DefaultLogLevel = "info"
)

// GetEnvAPIBaseURL returns the backend base URL from environment variables
func GetEnvAPIBaseURL() (string, error) {
	apiBaseURL := os.Getenv("API_BASE_URL")
	if apiBaseURL == "" {
		return DefaultAPIBaseURL, nil
	}

	// Validate URL format
	if _, err := url.ParseRequestURI(apiBaseURL); err != nil {
		return "", fmt.Errorf("invalid API_BASE_URL value: %s, must be a valid URL", apiBaseURL)
	}
	return strings.TrimRight(apiBaseURL, "/"), nil
}

// GetEnvChainID returns the default chain ID from environment variables
func GetEnvChainID() (int, error) {
	chainID := os.Getenv("CHAIN_ID")
	if chainID == "" {
		return DefaultChainID, nil
	}

	id, err := strconv.Atoi(chainID)
	if err != nil {
		return 0, fmt.Errorf("invalid CHAIN_ID value: %s, must be an integer", chainID)
	}
	if !chains.IsSupported(id) {
		return 0, fmt.Errorf("unsupported CHAIN_ID: %d", id)
	}
	return id, nil
}

// GetEnvRPCURL returns the RPC endpoint from environment variables or the chain default
func GetEnvRPCURL(chainID int) (string, error) {
	rpcURL := os.Getenv("RPC_URL")
	if rpcURL == "" {
		return chains.GetDefaultRPCURL(chainID), nil
	}

	if _, err := url.ParseRequestURI(rpcURL); err != nil {
		return "", fmt.Errorf("invalid RPC_URL value: %s, must be a valid URL", rpcURL)
	}
	return rpcURL, nil
}

// GetEnvCacheManagerAddress returns the CacheManager address from environment variables or the chain default
func GetEnvCacheManagerAddress(chainID int) (string, error) {
	address := os.Getenv("CACHE_MANAGER_ADDRESS")
	if address == "" {
		return chains.GetCacheManagerAddress(chainID), nil
	}

	// Validate Ethereum address format
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid CACHE_MANAGER_ADDRESS value: %s, must be a valid Ethereum address", address)
	}
	return address, nil
}

// GetEnvMaxGasPrice returns the gas price ceiling in wei, configured in gwei
func GetEnvMaxGasPrice() (*big.Int, error) {
	maxGasPrice := os.Getenv("MAX_GAS_PRICE_GWEI")
	if maxGasPrice == "" {
		maxGasPrice = DefaultMaxGasPriceGwei
	}

	wei, err := units.ParseGwei(maxGasPrice)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_GAS_PRICE_GWEI value: %s, must be a non-negative decimal", maxGasPrice)
	}
	return wei, nil
}

// GetEnvGasLimit returns the gas limit for bid transactions from environment variables or the chain default
func GetEnvGasLimit(chainID int) (uint64, error) {
	gasLimit := os.Getenv("GAS_LIMIT")
	if gasLimit == "" {
		return chains.PlaceBidDefaultGasLimit[chainID], nil
	}

	limit, err := strconv.ParseUint(gasLimit, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid GAS_LIMIT value: %s, must be a positive integer", gasLimit)
	}
	if limit == 0 {
		return 0, fmt.Errorf("GAS_LIMIT must be greater than 0")
	}
	return limit, nil
}

// GetEnvReconcileMaxAttempts returns the reconciliation attempt budget from environment variables
func GetEnvReconcileMaxAttempts() (int, error) {
	return getEnvPositiveInt("RECONCILE_MAX_ATTEMPTS", DefaultReconcileMaxAttempts)
}

// GetEnvReconcileInterval returns the delay between reconciliation attempts from environment variables
func GetEnvReconcileInterval() (time.Duration, error) {
	return getEnvDuration("RECONCILE_INTERVAL", DefaultReconcileInterval, false)
}

// GetEnvTxAutoResetDelay returns the transaction auto-reset delay from environment variables
func GetEnvTxAutoResetDelay() (time.Duration, error) {
	return getEnvDuration("TX_AUTO_RESET_DELAY", DefaultTxAutoResetDelay, true)
}

// GetEnvTxTimeout returns the pending transaction timeout from environment variables
func GetEnvTxTimeout() (time.Duration, error) {
	return getEnvDuration("TX_TIMEOUT", DefaultTxTimeout, true)
}

// GetEnvAutomationEnabled returns whether bid automation is enabled from environment variables
func GetEnvAutomationEnabled() (bool, error) {
	return getEnvBool("AUTOMATION_ENABLED", DefaultAutomationEnabled)
}

// GetEnvAutomationInterval returns the automation check interval from environment variables
func GetEnvAutomationInterval() (time.Duration, error) {
	return getEnvDuration("AUTOMATION_INTERVAL", DefaultAutomationInterval, false)
}

// GetEnvAutomationBidBufferPercent returns the percentage added on top of the minimum bid
func GetEnvAutomationBidBufferPercent() (int, error) {
	buffer := os.Getenv("AUTOMATION_BID_BUFFER_PERCENT")
	if buffer == "" {
		return DefaultAutomationBidBufferPercent, nil
	}

	percent, err := strconv.Atoi(buffer)
	if err != nil {
		return 0, fmt.Errorf("invalid AUTOMATION_BID_BUFFER_PERCENT value: %s, must be an integer", buffer)
	}
	if percent < 0 || percent > 100 {
		return 0, fmt.Errorf("AUTOMATION_BID_BUFFER_PERCENT must be between 0 and 100")
	}
	return percent, nil
}

// GetEnvGasWatchInterval returns the gas refresh interval from environment variables
func GetEnvGasWatchInterval() (time.Duration, error) {
	return getEnvDuration("GAS_WATCH_INTERVAL", DefaultGasWatchInterval, false)
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	return getEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	return getEnvPositiveInt("CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold)
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow, false)
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset, false)
}

// GetEnvBackendRateLimit returns the backend requests-per-second limit from environment variables
func GetEnvBackendRateLimit() (float64, error) {
	limit := os.Getenv("BACKEND_RATE_LIMIT")
	if limit == "" {
		return DefaultBackendRateLimit, nil
	}

	parsed, err := strconv.ParseFloat(limit, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid BACKEND_RATE_LIMIT value: %s, must be a number", limit)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("BACKEND_RATE_LIMIT must be greater than 0")
	}
	return parsed, nil
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = DefaultLogLevel
	}

	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return logger.InfoLevel, fmt.Errorf("invalid LOG_LEVEL value: %s, must be one of debug, info, notice, error", level)
	}
	return parsed, nil
}

// GetEnvLogColoring returns whether log output is colored from environment variables
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", true)
}

func getEnvPositiveInt(key string, def int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", key, value)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return parsed, nil
}

// getEnvDuration parses a Go duration string; allowZero permits "0" to disable a feature
func getEnvDuration(key string, def time.Duration, allowZero bool) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", key, value)
	}
	if parsed < 0 || (parsed == 0 && !allowZero) {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return parsed, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}

	if value == "true" {
		return true, nil
	} else if value == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", key, value)
}
