// ABOUTME: Contract tests for the event wire format to detect breaking changes.
// ABOUTME: Validates that every published field name and shape stays stable.

package contract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openagents/openagents/internal/event"
)

// wireFields is the published wire schema. Removing or renaming any of these
// keys is a breaking change for every connected agent; this test catches it
// before it ships.
var wireFields = []string{
	"event_id",
	"event_name",
	"timestamp",
	"source_id",
	"source_type",
	"destination_id",
	"target_channel",
	"relevant_mod",
	"requires_response",
	"response_to",
	"payload",
	"metadata",
	"text_representation",
	"visibility",
	"allowed_agents",
}

func TestWireSchema_AllFieldsPresent(t *testing.T) {
	ev, err := event.New(event.Params{
		Name:     "contract.check.ran",
		SourceID: "contract-test",
	})
	require.NoError(t, err)

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))

	for _, field := range wireFields {
		assert.Contains(t, decoded, field, "wire field %q must always be emitted", field)
	}
	assert.Len(t, decoded, len(wireFields), "no unexpected wire fields")
}

func TestWireSchema_OptionalFieldsSerializeAsNull(t *testing.T) {
	ev, err := event.New(event.Params{
		Name:     "contract.check.ran",
		SourceID: "contract-test",
	})
	require.NoError(t, err)

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	for _, field := range []string{"destination_id", "target_channel", "relevant_mod", "response_to", "text_representation"} {
		val, present := decoded[field]
		require.True(t, present, field)
		assert.Nil(t, val, "absent optional %q serializes as null, not omitted", field)
	}
}

func TestWireSchema_EnumValues(t *testing.T) {
	visibilities := []event.Visibility{
		event.VisibilityPublic,
		event.VisibilityNetwork,
		event.VisibilityChannel,
		event.VisibilityDirect,
		event.VisibilityRestricted,
		event.VisibilityModOnly,
	}
	expected := []string{"public", "network", "channel", "direct", "restricted", "mod_only"}
	for i, v := range visibilities {
		assert.Equal(t, expected[i], string(v))
	}

	assert.Equal(t, "agent", string(event.SourceAgent))
	assert.Equal(t, "mod", string(event.SourceMod))
}

func TestWireSchema_RoundTripStability(t *testing.T) {
	original := `{
		"event_id": "11111111-2222-3333-4444-555555555555",
		"event_name": "channel.message.posted",
		"timestamp": 1700000000000000000,
		"source_id": "a",
		"source_type": "agent",
		"destination_id": null,
		"target_channel": "#general",
		"relevant_mod": null,
		"requires_response": false,
		"response_to": null,
		"payload": {"text": "hi"},
		"metadata": {},
		"text_representation": "hi",
		"visibility": "channel",
		"allowed_agents": null,
		"x_extension_field": {"nested": true}
	}`

	ev, err := event.Decode([]byte(original))
	require.NoError(t, err)

	reencoded, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(reencoded, &decoded))
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", decoded["event_id"])
	assert.Equal(t, "#general", decoded["target_channel"])
	ext, ok := decoded["x_extension_field"].(map[string]any)
	require.True(t, ok, "unknown wire fields survive a round trip")
	assert.Equal(t, true, ext["nested"])
}
