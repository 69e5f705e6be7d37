package serialization

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconflow/reconflow/internal/domain/scanning"
)

func TestSerializeAndDeserializeSubdomainDiscovered(t *testing.T) {
	t.Parallel()

	event := scanning.NewSubdomainDiscoveredEvent(uuid.New(), "example.com", "a.example.com", "subfinder")

	data, err := SerializeEventEnvelope(event.EventType(), event)
	require.NoError(t, err)

	evtType, payloadBytes, err := UnmarshalUniversalEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, scanning.EventTypeSubdomainDiscovered, evtType)

	payload, err := DeserializePayload(evtType, payloadBytes)
	require.NoError(t, err)

	decoded, ok := payload.(scanning.SubdomainDiscoveredEvent)
	require.True(t, ok, "payload should decode to the concrete event type")
	assert.Equal(t, event.ScanID, decoded.ScanID)
	assert.Equal(t, "a.example.com", decoded.Hostname)
	assert.Equal(t, "subfinder", decoded.SourceTool)
}

func TestDeserializePayloadUnknownType(t *testing.T) {
	t.Parallel()

	_, err := DeserializePayload("NoSuchEvent", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no payload type registered")
}

func TestUnmarshalUniversalEnvelopeMissingType(t *testing.T) {
	t.Parallel()

	_, _, err := UnmarshalUniversalEnvelope([]byte(`{"payload":{}}`))
	require.Error(t, err)
}
