package updates

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_EmitReachesPriorSubscribers(t *testing.T) {
	bus := NewBus(nil)

	var first, second, late []Signal
	bus.Subscribe(func(s Signal) { first = append(first, s) })
	bus.Subscribe(func(s Signal) { second = append(second, s) })

	bus.Emit("c1", KindBid)
	bus.Subscribe(func(s Signal) { late = append(late, s) })

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, "c1", first[0].EntityID)
	assert.Equal(t, KindBid, first[0].Kind)
	assert.Equal(t, first[0], second[0])
	assert.False(t, first[0].Timestamp.IsZero())
	assert.Empty(t, late)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)
	calls := 0
	unsubscribe := bus.Subscribe(func(Signal) { calls++ })

	bus.Emit("c1", KindName)
	unsubscribe()
	unsubscribe()
	bus.Emit("c1", KindName)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Len())
}

func TestBus_SelfUnsubscribeDuringDispatch(t *testing.T) {
	bus := NewBus(nil)

	var order []string
	var unsubscribe func()
	unsubscribe = bus.Subscribe(func(Signal) {
		order = append(order, "a")
		unsubscribe()
	})
	bus.Subscribe(func(Signal) { order = append(order, "b") })
	bus.Subscribe(func(Signal) { order = append(order, "c") })

	bus.Emit("c1", KindDeleted)
	assert.Equal(t, []string{"a", "b", "c"}, order)

	order = nil
	bus.Emit("c1", KindDeleted)
	assert.Equal(t, []string{"b", "c"}, order)
}

func TestBus_PanickingSubscriberIsolated(t *testing.T) {
	bus := NewBus(nil)
	received := 0

	bus.Subscribe(func(Signal) { panic("boom") })
	bus.Subscribe(func(Signal) { received++ })

	assert.NotPanics(t, func() { bus.Emit("c2", KindAdded) })
	assert.Equal(t, 1, received)
}

func TestBus_ConcurrentSubscribeAndEmit(t *testing.T) {
	bus := NewBus(nil)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsubscribe := bus.Subscribe(func(Signal) {})
			unsubscribe()
		}()
		go func() {
			defer wg.Done()
			bus.Emit("c3", KindBid)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, bus.Len())
}

func TestDefaultBus(t *testing.T) {
	var got Signal
	unsubscribe := Subscribe(func(s Signal) { got = s })
	defer unsubscribe()

	Emit("c4", KindName)
	assert.Equal(t, "c4", got.EntityID)
	assert.Same(t, Default(), defaultBus)
}
