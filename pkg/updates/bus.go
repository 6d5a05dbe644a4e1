// Package updates broadcasts "entity X changed" signals between components that
// otherwise do not know about each other.
package updates

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/speedrun-hq/cachekeeper/pkg/logger"
	"github.com/speedrun-hq/cachekeeper/pkg/metrics"
)

// Kind describes what changed. The set is open.
type Kind string

const (
	KindName    Kind = "name"
	KindBid     Kind = "bid"
	KindDeleted Kind = "deleted"
	KindAdded   Kind = "added"

	// KindAutomation marks a change to a contract's automation settings
	KindAutomation Kind = "automation"
)

// Signal is a single broadcast
type Signal struct {
	EntityID  string    `json:"entity_id"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler receives signals. It runs on the emitting goroutine.
type Handler func(Signal)

type subscription struct {
	id      string
	handler Handler
}

// Bus is an in-memory publish/subscribe registry. Signals are not queued: a
// subscriber only sees signals emitted while it is registered.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger logger.Logger
}

// NewBus creates an empty bus
func NewBus(log logger.Logger) *Bus {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Bus{logger: log}
}

// Subscribe registers handler and returns a function that removes it. Calling the
// returned function more than once is harmless, including from inside handler.
func (b *Bus) Subscribe(handler Handler) (unsubscribe func()) {
	id := uuid.NewString()

	b.mu.Lock()
	b.subs = append(b.subs, subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			// copy so snapshots taken by in-progress emits stay intact
			next := make([]subscription, 0, len(b.subs)-1)
			next = append(next, b.subs[:i]...)
			b.subs = append(next, b.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers a signal synchronously to every current subscriber. A panicking
// subscriber is logged and skipped.
func (b *Bus) Emit(entityID string, kind Kind) Signal {
	signal := Signal{EntityID: entityID, Kind: kind, Timestamp: time.Now()}

	b.mu.RLock()
	snapshot := b.subs
	b.mu.RUnlock()

	metrics.UpdateSignals.WithLabelValues(string(kind)).Inc()

	for _, sub := range snapshot {
		b.deliver(sub, signal)
	}
	return signal
}

func (b *Bus) deliver(sub subscription, signal Signal) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Update subscriber %s panicked on %s/%s: %v", sub.id, signal.EntityID, signal.Kind, r)
		}
	}()
	sub.handler(signal)
}

// Len returns the number of registered subscribers
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

var defaultBus = NewBus(nil)

// Default returns the process-wide bus
func Default() *Bus {
	return defaultBus
}

// Emit broadcasts on the process-wide bus
func Emit(entityID string, kind Kind) Signal {
	return defaultBus.Emit(entityID, kind)
}

// Subscribe registers a handler on the process-wide bus
func Subscribe(handler Handler) func() {
	return defaultBus.Subscribe(handler)
}
