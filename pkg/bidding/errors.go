package bidding

import (
	"errors"
	"strings"

	"github.com/speedrun-hq/cachekeeper/pkg/backend"
	"github.com/speedrun-hq/cachekeeper/pkg/txlifecycle"
	"github.com/speedrun-hq/cachekeeper/pkg/txprep"
)

var (
	// ErrContractNotFound means the backend does not know the contract
	ErrContractNotFound = errors.New("contract not found")
	// ErrEmptyName means a rename was requested with a blank name
	ErrEmptyName = errors.New("contract name must not be empty")
	// ErrInvalidMaxBid means automation was enabled with an unusable maximum bid
	ErrInvalidMaxBid = errors.New("invalid maximum bid")
)

// ClassifyError decides whether a failed bid may be attempted again on a later
// tick. errorType labels the failure for logs and metrics.
func ClassifyError(err error) (retryable bool, errorType string) {
	switch {
	case errors.Is(err, txlifecycle.ErrGasPriceTooHigh):
		return true, "gas_price_too_high"
	case errors.Is(err, txlifecycle.ErrBusy):
		return true, "busy"
	case errors.Is(err, txlifecycle.ErrTimeout):
		return true, "timeout"
	case errors.Is(err, backend.ErrServiceUnavailable):
		return true, "backend_unavailable"
	case errors.Is(err, txlifecycle.ErrInvalidAmount),
		errors.Is(err, txprep.ErrInvalidAddress),
		errors.Is(err, txprep.ErrInvalidCall),
		errors.Is(err, ErrInvalidMaxBid):
		return false, "invalid_input"
	case errors.Is(err, ErrContractNotFound):
		return false, "contract_not_found"
	case errors.Is(err, txlifecycle.ErrReceiptFailed):
		return false, "contract_error"
	}

	errStr := err.Error()

	// Network/RPC errors
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "timed out") ||
		strings.Contains(errStr, "no response") ||
		strings.Contains(errStr, "EOF") {
		return true, "network_error"
	}

	// RPC node state errors
	if strings.Contains(errStr, "missing trie node") ||
		strings.Contains(errStr, "header not found") ||
		strings.Contains(errStr, "block not found") {
		return true, "node_state_error"
	}

	// Nonce errors clear up once the tracker resyncs
	if strings.Contains(errStr, "nonce too low") ||
		strings.Contains(errStr, "nonce too high") ||
		strings.Contains(errStr, "replacement transaction underpriced") {
		return true, "nonce_error"
	}

	if strings.Contains(errStr, "gas price too low") ||
		strings.Contains(errStr, "max fee per gas less than block base fee") {
		return true, "gas_error"
	}

	// Balance errors need an operator to top up the wallet
	if strings.Contains(errStr, "insufficient funds") ||
		strings.Contains(errStr, "insufficient balance") {
		return false, "insufficient_balance"
	}

	// Contract errors repeat with the same inputs
	if strings.Contains(errStr, "execution reverted") ||
		strings.Contains(errStr, "invalid opcode") ||
		strings.Contains(errStr, "out of gas") {
		return false, "contract_error"
	}

	return true, "unknown_error"
}
