package messaging

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
)

func newSyncBus() *InMemoryEventBus {
	cfg := DefaultInMemoryEventBusConfig()
	cfg.AsyncMode = false
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewInMemoryEventBus(cfg)
}

func TestPublish_DeliversToTypedSubscriber(t *testing.T) {
	bus := newSyncBus()

	var received []shared.Event
	err := bus.Subscribe(shared.EventItemSynced, func(e shared.Event) error {
		received = append(received, e)
		return nil
	})
	require.NoError(t, err)

	event := shared.NewItemSyncedEvent("item1", "abc", false, 1)
	require.NoError(t, bus.Publish(event))

	require.Len(t, received, 1)
	assert.Equal(t, shared.EventItemSynced, received[0].EventType())
}

func TestPublish_SkipsUnrelatedSubscriber(t *testing.T) {
	bus := newSyncBus()

	calls := 0
	require.NoError(t, bus.Subscribe(shared.EventItemParked, func(shared.Event) error {
		calls++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewItemSyncedEvent("item1", "abc", false, 1)))

	assert.Zero(t, calls)
}

func TestPublish_GlobalSubscriberSeesEverything(t *testing.T) {
	bus := newSyncBus()

	var types []shared.EventType
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		types = append(types, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewItemSyncedEvent("item1", "abc", false, 1)))
	require.NoError(t, bus.Publish(shared.NewItemParkedEvent("item2", "rejected", 3)))

	assert.Equal(t, []shared.EventType{shared.EventItemSynced, shared.EventItemParked}, types)
}

func TestPublish_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := newSyncBus()

	second := 0
	require.NoError(t, bus.Subscribe(shared.EventItemSynced, func(shared.Event) error {
		return errors.New("boom")
	}))
	require.NoError(t, bus.Subscribe(shared.EventItemSynced, func(shared.Event) error {
		second++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewItemSyncedEvent("item1", "abc", false, 1)))

	assert.Equal(t, 1, second)
}

func TestPublish_NoHandlersIsFine(t *testing.T) {
	bus := newSyncBus()

	assert.NoError(t, bus.Publish(shared.NewItemSyncedEvent("item1", "abc", false, 1)))
}

func TestPublish_NilEventRejected(t *testing.T) {
	bus := newSyncBus()

	assert.Error(t, bus.Publish(nil))
}

func TestSubscribe_NilHandlerRejected(t *testing.T) {
	bus := newSyncBus()

	assert.Error(t, bus.Subscribe(shared.EventItemSynced, nil))
	assert.Error(t, bus.SubscribeAll(nil))
}

func TestClose_RejectsFurtherUse(t *testing.T) {
	bus := newSyncBus()
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(shared.NewItemSyncedEvent("item1", "abc", false, 1)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventItemSynced, func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)

	// Closing twice is a no-op.
	assert.NoError(t, bus.Close())
}

func TestAsyncMode_DeliversAndDrainsOnClose(t *testing.T) {
	cfg := DefaultInMemoryEventBusConfig()
	cfg.WorkerPoolSize = 4
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := NewInMemoryEventBus(cfg)

	var mu sync.Mutex
	count := 0
	require.NoError(t, bus.Subscribe(shared.EventItemSynced, func(shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(shared.NewItemSyncedEvent("item1", "abc", false, 1)))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 20
	}, 2*time.Second, 10*time.Millisecond)

	// Close waits for in-flight handlers.
	require.NoError(t, bus.Close())
}

func TestMetrics_TracksPublishesAndOutcomes(t *testing.T) {
	bus := newSyncBus()

	require.NoError(t, bus.Subscribe(shared.EventItemSynced, func(shared.Event) error {
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventItemParked, func(shared.Event) error {
		return errors.New("boom")
	}))

	require.NoError(t, bus.Publish(shared.NewItemSyncedEvent("item1", "abc", false, 1)))
	require.NoError(t, bus.Publish(shared.NewItemParkedEvent("item2", "rejected", 3)))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalPublished)
	assert.Equal(t, int64(2), snap.TotalHandlerExecs)
	assert.InDelta(t, 0.5, snap.HandlerSuccessRate, 0.001)
	assert.False(t, snap.LastReset.IsZero())
	assert.WithinDuration(t, time.Now(), snap.LastReset, time.Minute)
}
