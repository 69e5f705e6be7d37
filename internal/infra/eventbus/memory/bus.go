// Package memory provides an in-process event bus for single-node deployments
// and tests. Delivery is synchronous: Publish invokes every matching handler
// before returning.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/reconflow/reconflow/internal/domain/events"
)

var _ events.EventBus = (*EventBus)(nil)

// EventBus routes envelopes to handlers registered per event type.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[events.EventType][]events.HandlerFunc
	closed   bool
}

// NewEventBus creates an empty in-process event bus.
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[events.EventType][]events.HandlerFunc)}
}

// Publish delivers the envelope to every handler subscribed to its type.
// Handler errors are joined so one failing subscriber does not hide another.
func (b *EventBus) Publish(ctx context.Context, event events.EventEnvelope, opts ...events.PublishOption) error {
	var pParams events.PublishParams
	for _, opt := range opts {
		opt(&pParams)
	}
	if pParams.Key != "" {
		event.Key = pParams.Key
	}
	if len(pParams.Headers) > 0 {
		event.Headers = pParams.Headers
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.New("event bus is closed")
	}
	handlers := make([]events.HandlerFunc, len(b.handlers[event.Type]))
	copy(handlers, b.handlers[event.Type])
	b.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a handler for each of the given event types.
func (b *EventBus) Subscribe(_ context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New("event bus is closed")
	}
	for _, et := range eventTypes {
		b.handlers[et] = append(b.handlers[et], handler)
	}
	return nil
}

// Close drops all subscriptions and rejects further publishes.
func (b *EventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.handlers = make(map[events.EventType][]events.HandlerFunc)
	return nil
}
