package messaging

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

func newSyncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:     false,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		EnableMetrics: true,
	})
}

type testEvent struct {
	shared.BaseEvent
}

func newTestEvent(eventType shared.EventType) testEvent {
	return testEvent{BaseEvent: shared.NewBaseEvent(eventType, "agg-1")}
}

func (e testEvent) Payload() map[string]any { return nil }

func TestInMemoryEventBus_PublishDeliversToSubscribers(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var got shared.Event
	err := bus.Subscribe(shared.EventCompetitionStarted, func(e shared.Event) error {
		got = e
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(newTestEvent(shared.EventCompetitionStarted)))

	require.NotNil(t, got)
	assert.Equal(t, shared.EventCompetitionStarted, got.EventType())
}

func TestInMemoryEventBus_HandlerFailureIsIsolated(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var calls []string
	require.NoError(t, bus.SubscribeNamed(shared.EventCompetitionStopped, "failing", func(shared.Event) error {
		calls = append(calls, "failing")
		return errors.New("boom")
	}))
	require.NoError(t, bus.SubscribeNamed(shared.EventCompetitionStopped, "ok", func(shared.Event) error {
		calls = append(calls, "ok")
		return nil
	}))

	require.NoError(t, bus.Publish(newTestEvent(shared.EventCompetitionStopped)))

	assert.Equal(t, []string{"failing", "ok"}, calls)
}

func TestInMemoryEventBus_HandlerPanicIsIsolated(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var okRan bool
	require.NoError(t, bus.Subscribe(shared.EventCompetitionStarted, func(shared.Event) error {
		panic("handler blew up")
	}))
	require.NoError(t, bus.Subscribe(shared.EventCompetitionStarted, func(shared.Event) error {
		okRan = true
		return nil
	}))

	require.NoError(t, bus.Publish(newTestEvent(shared.EventCompetitionStarted)))

	assert.True(t, okRan)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.HandlerFailures)
	assert.Equal(t, int64(1), snap.HandlerSuccesses)
}

func TestInMemoryEventBus_SubscribeAllReceivesEveryType(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var count int
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		count++
		return nil
	}))

	require.NoError(t, bus.Publish(newTestEvent(shared.EventCompetitionStarted)))
	require.NoError(t, bus.Publish(newTestEvent(shared.EventSeasonFinished)))

	assert.Equal(t, 2, count)
}

func TestInMemoryEventBus_NoHandlersIsNotAnError(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	assert.NoError(t, bus.Publish(newTestEvent(shared.EventAchievementsGranted)))
}

func TestInMemoryEventBus_AsyncModeCompletesBeforeClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 4,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	var count atomic.Int64
	var wg sync.WaitGroup
	wg.Add(10)
	require.NoError(t, bus.Subscribe(shared.EventCurrentResultUpdate, func(shared.Event) error {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		count.Add(1)
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(newTestEvent(shared.EventCurrentResultUpdate)))
	}

	wg.Wait()
	require.NoError(t, bus.Close())

	assert.Equal(t, int64(10), count.Load())
}

func TestInMemoryEventBus_ClosedBusRejectsOperations(t *testing.T) {
	bus := newSyncBus()
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(newTestEvent(shared.EventCompetitionStarted)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventCompetitionStarted, func(shared.Event) error { return nil }), ErrEventBusClosed)

	// Closing twice is a no-op.
	assert.NoError(t, bus.Close())
}

func TestInMemoryEventBus_NilHandlerRejected(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	assert.Error(t, bus.Subscribe(shared.EventCompetitionStarted, nil))
	assert.Error(t, bus.SubscribeAll(nil))
}
