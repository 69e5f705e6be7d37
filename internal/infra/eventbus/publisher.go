// Package eventbus adapts the domain-level event publisher to any concrete
// events.EventBus implementation.
package eventbus

import (
	"context"

	"github.com/reconflow/reconflow/internal/domain/events"
)

var _ events.DomainEventPublisher = (*DomainEventPublisher)(nil)

// DomainEventPublisher implements events.DomainEventPublisher on top of an
// event bus. It wraps domain events in envelopes so producers stay decoupled
// from the underlying transport.
type DomainEventPublisher struct {
	eventBus events.EventBus
}

// NewDomainEventPublisher creates a publisher that distributes domain events
// through the provided event bus.
func NewDomainEventPublisher(eventBus events.EventBus) *DomainEventPublisher {
	return &DomainEventPublisher{eventBus: eventBus}
}

// PublishDomainEvent wraps a domain event in an envelope and publishes it,
// forwarding any routing options to the bus.
func (pub *DomainEventPublisher) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	envelope := events.EventEnvelope{
		Type:      event.EventType(),
		Timestamp: event.OccurredAt(),
		Payload:   event,
	}
	return pub.eventBus.Publish(ctx, envelope, opts...)
}
