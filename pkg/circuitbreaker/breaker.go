// Package circuitbreaker stops calls to a dependency that keeps failing.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/speedrun-hq/cachekeeper/pkg/logger"
	"github.com/speedrun-hq/cachekeeper/pkg/metrics"
)

// ErrOpen is returned by Do while the circuit is open
var ErrOpen = errors.New("circuit breaker is open")

// CircuitBreaker counts failures inside a sliding window and opens once the
// threshold is reached. An open breaker closes again after the reset timeout.
type CircuitBreaker struct {
	name          string
	enabled       bool
	failureCount  int
	failureWindow time.Duration
	failThreshold int
	resetTimeout  time.Duration
	lastFailure   time.Time
	tripped       bool
	tripTime      time.Time
	now           func() time.Time
	logger        logger.Logger
	mu            sync.Mutex
}

// Config configures a breaker
type Config struct {
	Enabled      bool
	Threshold    int
	Window       time.Duration
	ResetTimeout time.Duration
}

// New creates a breaker. name labels its log lines and its gauge.
func New(name string, cfg Config, log logger.Logger) *CircuitBreaker {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 1
	}
	cb := &CircuitBreaker{
		name:          name,
		enabled:       cfg.Enabled,
		failThreshold: cfg.Threshold,
		failureWindow: cfg.Window,
		resetTimeout:  cfg.ResetTimeout,
		now:           time.Now,
		logger:        log,
	}
	metrics.CircuitOpen.WithLabelValues(name).Set(0)
	return cb
}

// Name returns the breaker label
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Do runs fn unless the circuit is open. Errors for which countable returns
// false do not count as failures; a nil countable counts every error.
func (cb *CircuitBreaker) Do(fn func() error, countable func(error) bool) error {
	if cb.IsOpen() {
		return ErrOpen
	}
	err := fn()
	if err != nil && (countable == nil || countable(err)) {
		cb.RecordFailure()
	} else if err == nil {
		cb.RecordSuccess()
	}
	return err
}

// RecordFailure records a failure and reports whether the circuit is now open
func (cb *CircuitBreaker) RecordFailure() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	if cb.tripped {
		if now.Sub(cb.tripTime) <= cb.resetTimeout {
			return true
		}
		cb.logger.Info("Circuit breaker %s: reset timeout elapsed, closing", cb.name)
		cb.closeLocked()
	}

	if now.Sub(cb.lastFailure) > cb.failureWindow {
		cb.failureCount = 0
	}

	cb.failureCount++
	cb.lastFailure = now

	if cb.failureCount >= cb.failThreshold {
		cb.tripped = true
		cb.tripTime = now
		metrics.CircuitOpen.WithLabelValues(cb.name).Set(1)
		cb.logger.Error("Circuit breaker %s tripped: %d failures in %s", cb.name, cb.failureCount, cb.failureWindow)
		return true
	}

	return false
}

// RecordSuccess clears the failure count of a closed circuit
func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.enabled {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.tripped {
		cb.failureCount = 0
	}
}

// IsOpen returns true if the circuit is open (tripped)
func (cb *CircuitBreaker) IsOpen() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.tripped && cb.now().Sub(cb.tripTime) > cb.resetTimeout {
		cb.closeLocked()
	}

	return cb.tripped
}

// Reset manually closes the circuit
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.closeLocked()
}

func (cb *CircuitBreaker) closeLocked() {
	cb.tripped = false
	cb.failureCount = 0
	metrics.CircuitOpen.WithLabelValues(cb.name).Set(0)
}

// State is a point-in-time view of a breaker
type State struct {
	Name         string    `json:"name"`
	Enabled      bool      `json:"enabled"`
	Open         bool      `json:"open"`
	FailureCount int       `json:"failure_count"`
	Threshold    int       `json:"threshold"`
	TripTime     time.Time `json:"trip_time,omitempty"`
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	open := cb.IsOpen()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	return State{
		Name:         cb.name,
		Enabled:      cb.enabled,
		Open:         open,
		FailureCount: cb.failureCount,
		Threshold:    cb.failThreshold,
		TripTime:     cb.tripTime,
	}
}
