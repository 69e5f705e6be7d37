// Package serialization converts domain events to and from their wire format.
// Events travel as a JSON universal envelope carrying the event type alongside
// the type-specific payload, so consumers can route before decoding.
package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/reconflow/reconflow/internal/domain/events"
	"github.com/reconflow/reconflow/internal/domain/scanning"
)

// UniversalEnvelope is the wire representation shared by every event type.
type UniversalEnvelope struct {
	EventType events.EventType `json:"event_type"`
	Payload   json.RawMessage  `json:"payload"`
}

// payloadFactories maps each event type to a constructor for its payload type.
// Deserialization fails for types not registered here.
var payloadFactories = map[events.EventType]func() any{
	scanning.EventTypeScanRequested:       func() any { return new(scanning.ScanRequestedEvent) },
	scanning.EventTypeScanStatusChanged:   func() any { return new(scanning.ScanStatusChangedEvent) },
	scanning.EventTypeScanCancelled:       func() any { return new(scanning.ScanCancelledEvent) },
	scanning.EventTypeSubdomainDiscovered: func() any { return new(scanning.SubdomainDiscoveredEvent) },
	scanning.EventTypeHostAlive:           func() any { return new(scanning.HostAliveEvent) },
	scanning.EventTypeURLDiscovered:       func() any { return new(scanning.URLDiscoveredEvent) },
	scanning.EventTypeVulnScanRequested:   func() any { return new(scanning.VulnScanRequestedEvent) },
}

// SerializeEventEnvelope marshals an event payload into the universal envelope format.
func SerializeEventEnvelope(eventType events.EventType, payload any) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for event %s: %w", eventType, err)
	}

	envelope := UniversalEnvelope{EventType: eventType, Payload: payloadBytes}
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope for event %s: %w", eventType, err)
	}
	return data, nil
}

// UnmarshalUniversalEnvelope decodes the outer envelope, returning the event type
// and the still-encoded payload bytes.
func UnmarshalUniversalEnvelope(data []byte) (events.EventType, []byte, error) {
	var envelope UniversalEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", nil, fmt.Errorf("failed to unmarshal universal envelope: %w", err)
	}
	if envelope.EventType == "" {
		return "", nil, fmt.Errorf("universal envelope missing event type")
	}
	return envelope.EventType, envelope.Payload, nil
}

// DeserializePayload decodes payload bytes into the concrete event type registered
// for eventType. The returned value is the event struct, not a pointer.
func DeserializePayload(eventType events.EventType, data []byte) (any, error) {
	factory, ok := payloadFactories[eventType]
	if !ok {
		return nil, fmt.Errorf("no payload type registered for event %s", eventType)
	}

	payload := factory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload for event %s: %w", eventType, err)
	}

	switch p := payload.(type) {
	case *scanning.ScanRequestedEvent:
		return *p, nil
	case *scanning.ScanStatusChangedEvent:
		return *p, nil
	case *scanning.ScanCancelledEvent:
		return *p, nil
	case *scanning.SubdomainDiscoveredEvent:
		return *p, nil
	case *scanning.HostAliveEvent:
		return *p, nil
	case *scanning.URLDiscoveredEvent:
		return *p, nil
	case *scanning.VulnScanRequestedEvent:
		return *p, nil
	default:
		return nil, fmt.Errorf("unhandled payload type for event %s", eventType)
	}
}
