// Package reconcile waits for the backend indexer to catch up with a confirmed
// on-chain change.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/speedrun-hq/cachekeeper/pkg/logger"
)

const (
	// DefaultMaxAttempts is the number of checks made before giving up
	DefaultMaxAttempts = 20
	// DefaultInterval is the fixed delay between checks
	DefaultInterval = 3 * time.Second
)

// Outcome is the result of a polling session
type Outcome int

const (
	// Reconciled means the check reported the expected state
	Reconciled Outcome = iota
	// TimedOut means the attempt budget ran out. Callers proceed optimistically.
	TimedOut
	// Cancelled means the caller stopped the session
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Reconciled:
		return "reconciled"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CheckFunc reports whether the backend reflects the expected state. Errors are
// treated as "not yet".
type CheckFunc func(ctx context.Context) (bool, error)

// Poller holds the polling parameters
type Poller struct {
	MaxAttempts int
	Interval    time.Duration
	Logger      logger.Logger
}

// NewPoller creates a poller, falling back to the defaults for non-positive values
func NewPoller(maxAttempts int, interval time.Duration, log logger.Logger) *Poller {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if interval < 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Poller{MaxAttempts: maxAttempts, Interval: interval, Logger: log}
}

// PollUntil runs check with the default logger. See Poller.PollUntil.
func PollUntil(ctx context.Context, check CheckFunc, maxAttempts int, interval time.Duration) (Outcome, error) {
	return NewPoller(maxAttempts, interval, nil).PollUntil(ctx, check)
}

// PollUntil calls check until it returns true or MaxAttempts calls have been made,
// sleeping Interval between calls. A cancelled ctx stops the loop before the next
// attempt; a call already running is allowed to finish and its result is dropped.
// The returned error is only ever ctx.Err().
func (p *Poller) PollUntil(ctx context.Context, check CheckFunc) (Outcome, error) {
	// in-flight checks are not interrupted by cancellation
	checkCtx := context.WithoutCancel(ctx)

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return Cancelled, ctx.Err()
		}

		ok, err := check(checkCtx)
		if ctx.Err() != nil {
			return Cancelled, ctx.Err()
		}
		if err != nil {
			p.Logger.Debug("Reconciliation attempt %d/%d failed: %v", attempt, p.MaxAttempts, err)
		} else if ok {
			p.Logger.Debug("Reconciled after %d attempt(s)", attempt)
			return Reconciled, nil
		}

		if attempt == p.MaxAttempts {
			break
		}

		timer := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Cancelled, ctx.Err()
		case <-timer.C:
		}
	}

	p.Logger.Notice("Backend did not reflect the change after %d attempts, continuing", p.MaxAttempts)
	return TimedOut, nil
}

// Session is a polling run in the background that can be stopped
type Session struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	outcome Outcome
}

// Start runs PollUntil in its own goroutine. onDone, when non-nil, receives the
// outcome unless the session was stopped first.
func (p *Poller) Start(ctx context.Context, check CheckFunc, onDone func(Outcome)) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		defer cancel()

		outcome, _ := p.PollUntil(ctx, check)
		s.mu.Lock()
		s.outcome = outcome
		s.mu.Unlock()

		if outcome != Cancelled && onDone != nil {
			onDone(outcome)
		}
	}()

	return s
}

// Stop cancels the session. It does not wait for an in-flight check.
func (s *Session) Stop() {
	s.cancel()
}

// Done is closed once the session has finished
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Outcome blocks until the session finishes and returns its outcome
func (s *Session) Outcome() Outcome {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}
