package txlifecycle

import (
	"errors"

	"github.com/speedrun-hq/cachekeeper/pkg/gas"
	"github.com/speedrun-hq/cachekeeper/pkg/txprep"
)

// Transaction lifecycle errors. Check with errors.Is.
var (
	// ErrInvalidAmount means the intent value failed local validation
	ErrInvalidAmount = txprep.ErrInvalidAmount
	// ErrGasPriceTooHigh means the admission policy refused the submission
	ErrGasPriceTooHigh = gas.ErrGasPriceTooHigh
	// ErrProviderRejected means the wallet or RPC declined before a hash existed
	ErrProviderRejected = errors.New("provider rejected transaction")
	// ErrReceiptFailed means the transaction was mined but execution failed
	ErrReceiptFailed = errors.New("transaction execution failed")
	// ErrReceiptUnavailable means the provider failed while waiting for the receipt
	ErrReceiptUnavailable = errors.New("failed to obtain transaction receipt")
	// ErrTimeout means the optional pending timeout elapsed before a receipt arrived
	ErrTimeout = errors.New("transaction timed out")
	// ErrNoPriorTransaction means Retry was called before any submission
	ErrNoPriorTransaction = errors.New("no prior transaction to retry")
	// ErrBusy means a submission is already preparing or pending
	ErrBusy = errors.New("transaction already in flight")
	// ErrInvalidTransition means the requested operation is not valid in the current status
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// IsLocalValidation reports whether err was raised before anything was sent to the chain
func IsLocalValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrGasPriceTooHigh) ||
		errors.Is(err, txprep.ErrInvalidAddress) ||
		errors.Is(err, txprep.ErrInvalidCall)
}
