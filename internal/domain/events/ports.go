package events

import "context"

// HandlerFunc processes a single event envelope delivered by an event bus.
type HandlerFunc func(ctx context.Context, evt EventEnvelope) error

// DomainEventPublisher publishes domain events to notify other parts of the system
// about important domain changes. It provides a technology-agnostic interface to
// decouple event producers from the underlying messaging infrastructure.
type DomainEventPublisher interface {
	// PublishDomainEvent sends a domain event to interested subscribers. The provided
	// context controls cancellation and deadlines. Optional PublishOptions configure
	// routing behavior.
	PublishDomainEvent(ctx context.Context, event DomainEvent, opts ...PublishOption) error
}

// EventBus enables publishing and subscribing to domain events across system
// boundaries. It abstracts messaging infrastructure details (like Kafka) to keep
// domain logic focused on business concerns rather than transport mechanisms.
type EventBus interface {
	// Publish broadcasts a domain event to all interested subscribers.
	Publish(ctx context.Context, event EventEnvelope, opts ...PublishOption) error

	// Subscribe registers a handler function to process events of the specified types.
	// The handler executes for each matching event received on this bus.
	Subscribe(ctx context.Context, eventTypes []EventType, handler HandlerFunc) error

	// Close gracefully shuts down the event bus and releases associated resources.
	Close() error
}
