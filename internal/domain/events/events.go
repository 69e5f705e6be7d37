// Package events provides domain event handling capabilities for communicating state changes
// and important activities across system boundaries in a decoupled way.
package events

import "time"

// EventType represents a domain event category, enabling type-safe event routing and handling.
type EventType string

// DomainEvent is implemented by every event the system emits. Concrete events live
// in the domain packages that own them (e.g. scanning).
type DomainEvent interface {
	// EventType identifies the category of the event for routing.
	EventType() EventType

	// OccurredAt records when the event was created.
	OccurredAt() time.Time
}

// EventEnvelope wraps a domain event with transport-level metadata as it moves
// through an event bus.
type EventEnvelope struct {
	// Type identifies the category of this event for routing and handling.
	Type EventType

	// Key enables consistent event routing, typically a scan id so all events of
	// one scan land on the same partition.
	Key string

	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string

	// Timestamp records when this event was created.
	Timestamp time.Time

	// Payload contains the actual event data. The concrete type depends on Type.
	Payload any
}

// PublishOption is a function type that modifies PublishParams, enabling flexible
// configuration of event publishing behavior through functional options.
type PublishOption func(*PublishParams)

// PublishParams contains configuration options for publishing domain events.
type PublishParams struct {
	// Key is used as a partition key to control event routing and ordering.
	Key string
	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string
}

// WithKey returns a PublishOption that sets the partition key for event routing.
func WithKey(key string) PublishOption {
	return func(p *PublishParams) { p.Key = key }
}

// WithHeaders returns a PublishOption that attaches metadata headers to an event.
func WithHeaders(headers map[string]string) PublishOption {
	return func(p *PublishParams) { p.Headers = headers }
}
