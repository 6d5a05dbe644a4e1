// Package txlifecycle tracks a single contract call from submission to a confirmed
// or failed receipt.
//
// A Lifecycle moves through Idle -> Preparing -> Pending -> Success | Error. Every
// status change goes through one transition table; an event that is not valid for
// the current status is refused instead of being applied.
package txlifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/speedrun-hq/cachekeeper/pkg/gas"
	"github.com/speedrun-hq/cachekeeper/pkg/logger"
	"github.com/speedrun-hq/cachekeeper/pkg/txprep"
)

// Provider is the chain side of a lifecycle
type Provider interface {
	// GasPrice returns the current network gas price in wei
	GasPrice(ctx context.Context) (*big.Int, error)
	// SendCall signs and broadcasts the call and returns its hash
	SendCall(ctx context.Context, call txprep.Descriptor) (common.Hash, error)
	// WaitReceipt blocks until the transaction is mined
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Status is the lifecycle state
type Status int

const (
	StatusIdle Status = iota
	StatusPreparing
	StatusPending
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPreparing:
		return "preparing"
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is Success or Error
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

type event int

const (
	evSubmit   event = iota // local checks passed, call is being sent
	evAccepted              // provider returned a hash
	evConfirm               // receipt succeeded
	evFail                  // any failure
	evReset
)

var eventNames = map[event]string{
	evSubmit:   "submit",
	evAccepted: "accepted",
	evConfirm:  "confirm",
	evFail:     "fail",
	evReset:    "reset",
}

// transitions is the complete state machine. Idle and Error accept evFail so that
// local validation failures land in Error without entering Preparing.
var transitions = map[Status]map[event]Status{
	StatusIdle:      {evSubmit: StatusPreparing, evFail: StatusError},
	StatusPreparing: {evAccepted: StatusPending, evFail: StatusError},
	StatusPending:   {evConfirm: StatusSuccess, evFail: StatusError},
	StatusSuccess:   {evReset: StatusIdle},
	StatusError:     {evReset: StatusIdle, evSubmit: StatusPreparing, evFail: StatusError},
}

// Snapshot is a copy of the lifecycle state at one point in time
type Snapshot struct {
	ID        string
	Status    Status
	TxHash    common.Hash
	Err       error
	Receipt   *types.Receipt
	Intent    *txprep.Intent
	UpdatedAt time.Time
}

// SuccessFunc is called once with the confirmed transaction hash
type SuccessFunc func(txHash common.Hash)

// Options tune a Lifecycle. Zero values disable the feature.
type Options struct {
	// AutoResetDelay returns a finished lifecycle to Idle after the delay
	AutoResetDelay time.Duration
	// Timeout bounds the wait for a receipt once the call is pending
	Timeout time.Duration
	// OnTransition observes every status change
	OnTransition func(from, to Status)
}

// Lifecycle owns one logical action's transaction state
type Lifecycle struct {
	mu sync.Mutex

	id       string
	provider Provider
	policy   gas.Policy
	opts     Options
	logger   logger.Logger

	status     Status
	txHash     common.Hash
	err        error
	receipt    *types.Receipt
	lastIntent *txprep.Intent
	onSuccess  SuccessFunc
	inFlight   bool
	updatedAt  time.Time

	// retryable is set when the last submission ended in Error and survives Reset
	retryable bool

	// generation invalidates auto-reset timers armed by an earlier submission
	generation uint64
	resetTimer *time.Timer
}

// New creates an idle lifecycle
func New(provider Provider, policy gas.Policy, opts Options, log logger.Logger) *Lifecycle {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Lifecycle{
		id:        uuid.NewString(),
		provider:  provider,
		policy:    policy,
		opts:      opts,
		logger:    log,
		status:    StatusIdle,
		updatedAt: time.Now(),
	}
}

// ID returns the lifecycle identifier used in logs
func (l *Lifecycle) ID() string {
	return l.id
}

// Submit runs the intent through preparation, gas admission, broadcast and receipt
// waiting, and returns the transaction hash on success. onSuccess, when non-nil, is
// invoked exactly once when the transaction confirms. A lifecycle that already
// finished is reset first; one that is still in flight returns ErrBusy.
func (l *Lifecycle) Submit(ctx context.Context, intent txprep.Intent, onSuccess SuccessFunc) (common.Hash, error) {
	l.mu.Lock()
	if l.inFlight {
		l.mu.Unlock()
		return common.Hash{}, ErrBusy
	}
	if l.status == StatusSuccess {
		l.applyLocked(evReset)
	}
	retained := copyIntent(intent)
	l.lastIntent = &retained
	l.onSuccess = onSuccess
	l.inFlight = true
	l.generation++
	l.stopResetTimerLocked()
	l.mu.Unlock()

	return l.run(ctx, retained)
}

// Retry resubmits the retained intent unchanged. The success callback of the
// original submission is kept if it has not fired yet.
func (l *Lifecycle) Retry(ctx context.Context) (common.Hash, error) {
	l.mu.Lock()
	if l.lastIntent == nil {
		l.mu.Unlock()
		return common.Hash{}, ErrNoPriorTransaction
	}
	if l.inFlight {
		l.mu.Unlock()
		return common.Hash{}, ErrBusy
	}
	if l.status != StatusError && !(l.status == StatusIdle && l.retryable) {
		status := l.status
		l.mu.Unlock()
		return common.Hash{}, fmt.Errorf("%w: cannot retry from %s", ErrInvalidTransition, status)
	}
	intent := copyIntent(*l.lastIntent)
	l.inFlight = true
	l.generation++
	l.stopResetTimerLocked()
	l.mu.Unlock()

	l.logger.Info("Retrying transaction %s: %s on %s", l.id, intent.Function, intent.Address)
	return l.run(ctx, intent)
}

// Reset returns a finished lifecycle to Idle, clearing the hash and error. The
// retained intent survives, and Retry still works if the last submission failed.
func (l *Lifecycle) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status == StatusIdle {
		return nil
	}
	if l.inFlight || !l.status.Terminal() {
		return fmt.Errorf("%w: cannot reset while %s", ErrBusy, l.status)
	}
	l.stopResetTimerLocked()
	return l.applyLocked(evReset)
}

// Snapshot returns the current state
func (l *Lifecycle) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	var intent *txprep.Intent
	if l.lastIntent != nil {
		copied := copyIntent(*l.lastIntent)
		intent = &copied
	}
	return Snapshot{
		ID:        l.id,
		Status:    l.status,
		TxHash:    l.txHash,
		Err:       l.err,
		Receipt:   l.receipt,
		Intent:    intent,
		UpdatedAt: l.updatedAt,
	}
}

// Status returns the current status
func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// CanRetry reports whether the lifecycle ended in Error with an intent to resubmit
func (l *Lifecycle) CanRetry() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastIntent != nil && !l.inFlight &&
		(l.status == StatusError || (l.status == StatusIdle && l.retryable))
}

func (l *Lifecycle) run(ctx context.Context, intent txprep.Intent) (common.Hash, error) {
	defer func() {
		l.mu.Lock()
		l.inFlight = false
		l.armResetTimerLocked()
		l.mu.Unlock()
	}()

	call, err := txprep.Prepare(intent, l.policy)
	if err != nil {
		return common.Hash{}, l.fail(err)
	}

	gasPrice, err := l.provider.GasPrice(ctx)
	if err != nil {
		// an unknown price is treated as unacceptable
		return common.Hash{}, l.fail(fmt.Errorf("%w: unable to read network gas price: %v", ErrGasPriceTooHigh, err))
	}
	if err := call.Gas.Check(gasPrice); err != nil {
		return common.Hash{}, l.fail(err)
	}

	if err := l.apply(evSubmit, nil); err != nil {
		return common.Hash{}, err
	}
	l.logger.Debug("Transaction %s preparing: %s on %s (value %s wei)", l.id, call.Function, call.To.Hex(), call.Value)

	hash, err := l.provider.SendCall(ctx, call)
	if err != nil {
		return common.Hash{}, l.fail(fmt.Errorf("%w: %w", ErrProviderRejected, err))
	}
	if err := l.apply(evAccepted, func() { l.txHash = hash }); err != nil {
		return hash, err
	}
	l.logger.Info("Transaction %s pending: %s", l.id, hash.Hex())

	waitCtx := ctx
	if l.opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.opts.Timeout)
		defer cancel()
	}

	receipt, err := l.provider.WaitReceipt(waitCtx, hash)
	if err != nil {
		if l.opts.Timeout > 0 && errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return hash, l.fail(fmt.Errorf("%w: no receipt for %s after %v", ErrTimeout, hash.Hex(), l.opts.Timeout))
		}
		return hash, l.fail(fmt.Errorf("%w: %w", ErrReceiptUnavailable, err))
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return hash, l.fail(fmt.Errorf("%w: %s reverted in block %v", ErrReceiptFailed, hash.Hex(), receipt.BlockNumber))
	}

	var callback SuccessFunc
	if err := l.apply(evConfirm, func() {
		l.receipt = receipt
		callback = l.onSuccess
		l.onSuccess = nil
	}); err != nil {
		return hash, err
	}
	l.logger.Info("Transaction %s confirmed: %s (gas used: %d)", l.id, hash.Hex(), receipt.GasUsed)

	if callback != nil {
		callback(hash)
	}
	return hash, nil
}

// fail moves the lifecycle to Error and returns the error for the caller
func (l *Lifecycle) fail(cause error) error {
	if err := l.apply(evFail, func() { l.err = cause }); err != nil {
		return err
	}
	if IsLocalValidation(cause) {
		l.logger.Notice("Transaction %s refused before submission: %v", l.id, cause)
	} else {
		l.logger.Error("Transaction %s failed: %v", l.id, cause)
	}
	return cause
}

// apply is the single transition function. mutate runs under the lock after the
// transition has been accepted.
func (l *Lifecycle) apply(ev event, mutate func()) error {
	l.mu.Lock()
	from := l.status
	if _, ok := transitions[from][ev]; !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, eventNames[ev], from)
	}
	if mutate != nil {
		mutate()
	}
	l.applyLocked(ev)
	to := l.status
	observer := l.opts.OnTransition
	l.mu.Unlock()

	if observer != nil {
		observer(from, to)
	}
	return nil
}

func (l *Lifecycle) applyLocked(ev event) error {
	next, ok := transitions[l.status][ev]
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, eventNames[ev], l.status)
	}

	switch next {
	case StatusIdle:
		l.txHash = common.Hash{}
		l.err = nil
		l.receipt = nil
	case StatusPreparing:
		l.txHash = common.Hash{}
		l.err = nil
		l.receipt = nil
		l.retryable = false
	case StatusSuccess:
		l.err = nil
		l.retryable = false
	case StatusError:
		l.retryable = true
	}

	l.status = next
	l.updatedAt = time.Now()
	return nil
}

func (l *Lifecycle) armResetTimerLocked() {
	if l.opts.AutoResetDelay <= 0 || !l.status.Terminal() {
		return
	}
	generation := l.generation
	l.resetTimer = time.AfterFunc(l.opts.AutoResetDelay, func() {
		l.mu.Lock()
		if l.generation != generation || l.inFlight || !l.status.Terminal() {
			l.mu.Unlock()
			return
		}
		from := l.status
		l.applyLocked(evReset)
		observer := l.opts.OnTransition
		l.mu.Unlock()

		l.logger.Debug("Transaction %s auto-reset from %s", l.id, from)
		if observer != nil {
			observer(from, StatusIdle)
		}
	})
}

func (l *Lifecycle) stopResetTimerLocked() {
	if l.resetTimer != nil {
		l.resetTimer.Stop()
		l.resetTimer = nil
	}
}

func copyIntent(intent txprep.Intent) txprep.Intent {
	if intent.Args != nil {
		intent.Args = append([]interface{}(nil), intent.Args...)
	}
	return intent
}
