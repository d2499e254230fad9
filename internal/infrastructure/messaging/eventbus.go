// Package messaging implements the in-process event bus that decouples
// competition lifecycle transitions from achievement evaluation and
// notification delivery.
package messaging

import (
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// Bus errors.
var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")
)

// InMemoryEventBus is a single-process implementation of shared.EventBus.
// All handlers registered for an event type run on every publish; a
// failing or panicking handler never prevents the others from running.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]namedHandler
	allHandlers []namedHandler
	asyncMode   bool
	workerPool  chan struct{}
	logger      *slog.Logger
	metrics     *EventBusMetrics
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

type namedHandler struct {
	name    string
	handler shared.EventHandler
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers in worker goroutines. Synchronous mode runs
	// them inline in publish order, which the tests rely on.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent handlers in async mode.
	WorkerPoolSize int

	// Logger for structured logging.
	Logger *slog.Logger

	// EnableMetrics enables publish/handler counters.
	EnableMetrics bool
}

// DefaultInMemoryEventBusConfig returns sensible defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		EnableMetrics:  true,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}

	bus := &InMemoryEventBus{
		handlers:   make(map[shared.EventType][]namedHandler),
		asyncMode:  config.AsyncMode,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		logger:     config.Logger,
		closeCh:    make(chan struct{}),
	}

	if config.EnableMetrics {
		bus.metrics = NewEventBusMetrics()
	}

	return bus
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.subscribeNamed(eventType, "", handler)
}

// SubscribeNamed registers a handler with a name used in failure logs.
func (b *InMemoryEventBus) SubscribeNamed(eventType shared.EventType, name string, handler shared.EventHandler) error {
	return b.subscribeNamed(eventType, name, handler)
}

func (b *InMemoryEventBus) subscribeNamed(eventType shared.EventType, name string, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.handlers[eventType] = append(b.handlers[eventType], namedHandler{name: name, handler: handler})
	b.logger.Debug("subscribed handler", "event_type", eventType, "handler", name)

	return nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.allHandlers = append(b.allHandlers, namedHandler{handler: handler})
	return nil
}

// Publish delivers an event to all subscribed handlers. Within one publish
// handler execution order is unspecified in async mode; failures are
// isolated per handler.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}

	handlers := make([]namedHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug("no handlers for event", "event_type", event.EventType())
		return nil
	}

	if b.metrics != nil {
		b.metrics.RecordPublish(event.EventType())
	}

	if b.asyncMode {
		for _, h := range handlers {
			b.executeAsync(event, h)
		}
	} else {
		for _, h := range handlers {
			b.execute(event, h)
		}
	}

	return nil
}

// executeAsync runs a handler on the worker pool.
func (b *InMemoryEventBus) executeAsync(event shared.Event, h namedHandler) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		select {
		case b.workerPool <- struct{}{}:
			defer func() { <-b.workerPool }()
		case <-b.closeCh:
			return
		}

		b.execute(event, h)
	}()
}

// execute runs one handler with panic recovery and metric accounting.
func (b *InMemoryEventBus) execute(event shared.Event, h namedHandler) {
	start := time.Now()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("handler panicked",
					"event_type", event.EventType(),
					"handler", h.name,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				err = errors.New("handler panicked")
			}
		}()
		err = h.handler(event)
	}()

	duration := time.Since(start)
	if b.metrics != nil {
		b.metrics.RecordHandlerExecution(event.EventType(), duration, err == nil)
	}

	if err != nil {
		b.logger.Error("handler error",
			"event_type", event.EventType(),
			"handler", h.name,
			"duration", duration,
			"error", err,
		)
	}
}

// Close gracefully shuts down the event bus, waiting for in-flight
// async handlers to complete.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()

	b.logger.Info("event bus closed")
	return nil
}

// Metrics returns the current metrics (nil when disabled).
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics tracks event bus counters.
type EventBusMetrics struct {
	mu sync.RWMutex

	PublishedTotal map[shared.EventType]int64

	HandlerExecutions    int64
	HandlerSuccesses     int64
	HandlerFailures      int64
	HandlerTotalDuration time.Duration
}

// NewEventBusMetrics creates a new metrics tracker.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{
		PublishedTotal: make(map[shared.EventType]int64),
	}
}

// RecordPublish records a publish.
func (m *EventBusMetrics) RecordPublish(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedTotal[eventType]++
}

// RecordHandlerExecution records a handler execution.
func (m *EventBusMetrics) RecordHandlerExecution(eventType shared.EventType, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.HandlerExecutions++
	m.HandlerTotalDuration += duration
	if success {
		m.HandlerSuccesses++
	} else {
		m.HandlerFailures++
	}
}

// Snapshot returns a point-in-time copy of the counters.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var published int64
	for _, v := range m.PublishedTotal {
		published += v
	}

	return EventBusMetricsSnapshot{
		TotalPublished:    published,
		TotalHandlerExecs: m.HandlerExecutions,
		HandlerSuccesses:  m.HandlerSuccesses,
		HandlerFailures:   m.HandlerFailures,
	}
}

// EventBusMetricsSnapshot is a point-in-time snapshot of metrics.
type EventBusMetricsSnapshot struct {
	TotalPublished    int64
	TotalHandlerExecs int64
	HandlerSuccesses  int64
	HandlerFailures   int64
}
