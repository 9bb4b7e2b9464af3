// ABOUTME: JSON wire codec for events with forward-compatible unknown-field handling.
// ABOUTME: Unknown fields seen on decode are carried through and re-emitted on encode.

package event

import (
	"encoding/json"
	"fmt"
)

// wireEvent is the fixed wire shape. Optional scalar fields serialize as null
// when absent; payload and metadata always serialize as objects.
type wireEvent struct {
	EventID            string          `json:"event_id"`
	EventName          string          `json:"event_name"`
	Timestamp          int64           `json:"timestamp"`
	SourceID           string          `json:"source_id"`
	SourceType         SourceType      `json:"source_type"`
	DestinationID      *string         `json:"destination_id"`
	TargetChannel      *string         `json:"target_channel"`
	RelevantMod        *string         `json:"relevant_mod"`
	RequiresResponse   bool            `json:"requires_response"`
	ResponseTo         *string         `json:"response_to"`
	Payload            map[string]any  `json:"payload"`
	Metadata           map[string]any  `json:"metadata"`
	TextRepresentation *string         `json:"text_representation"`
	Visibility         Visibility      `json:"visibility"`
	AllowedAgents      []string        `json:"allowed_agents"`
}

// wireFieldNames is the set of keys the codec owns; everything else on the
// wire is an unknown field preserved verbatim.
var wireFieldNames = map[string]struct{}{
	"event_id": {}, "event_name": {}, "timestamp": {}, "source_id": {},
	"source_type": {}, "destination_id": {}, "target_channel": {},
	"relevant_mod": {}, "requires_response": {}, "response_to": {},
	"payload": {}, "metadata": {}, "text_representation": {},
	"visibility": {}, "allowed_agents": {},
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func fromOptional(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (e *Event) wire() wireEvent {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	var allowed []string
	if len(e.AllowedAgents) > 0 {
		allowed = e.AllowedAgents
	}
	return wireEvent{
		EventID:            e.ID,
		EventName:          e.Name,
		Timestamp:          e.Timestamp,
		SourceID:           e.SourceID,
		SourceType:         e.SourceType,
		DestinationID:      optional(e.DestinationID),
		TargetChannel:      optional(e.TargetChannel),
		RelevantMod:        optional(e.RelevantMod),
		RequiresResponse:   e.RequiresResponse,
		ResponseTo:         optional(e.ResponseTo),
		Payload:            payload,
		Metadata:           metadata,
		TextRepresentation: optional(e.Text),
		Visibility:         e.Visibility,
		AllowedAgents:      allowed,
	}
}

// MarshalJSON encodes the event in the wire format, re-emitting any unknown
// fields captured at decode time.
func (e *Event) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.wire())
	if err != nil {
		return nil, err
	}
	if len(e.extra) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, raw := range e.extra {
		if _, owned := wireFieldNames[key]; !owned {
			merged[key] = raw
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the wire format. Missing optional fields take their
// zero defaults; unknown fields are retained for the next encode. Decoding
// does not validate — the gateway validates on injection.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding event: %w", err)
	}

	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decoding event fields: %w", err)
	}

	*e = Event{
		ID:               w.EventID,
		Name:             w.EventName,
		Timestamp:        w.Timestamp,
		SourceID:         w.SourceID,
		SourceType:       w.SourceType,
		DestinationID:    fromOptional(w.DestinationID),
		TargetChannel:    fromOptional(w.TargetChannel),
		RelevantMod:      fromOptional(w.RelevantMod),
		RequiresResponse: w.RequiresResponse,
		ResponseTo:       fromOptional(w.ResponseTo),
		Payload:          w.Payload,
		Metadata:         w.Metadata,
		Text:             fromOptional(w.TextRepresentation),
		Visibility:       w.Visibility,
		AllowedAgents:    w.AllowedAgents,
	}
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	if e.SourceType == "" {
		e.SourceType = SourceAgent
	}
	// Absent and explicit "network" both mean "derive from addressing",
	// matching New.
	if e.Visibility == "" || e.Visibility == VisibilityNetwork {
		e.Visibility = deriveVisibility(Params{
			DestinationID: e.DestinationID,
			TargetChannel: e.TargetChannel,
			RelevantMod:   e.RelevantMod,
		})
	}

	for key := range wireFieldNames {
		delete(raw, key)
	}
	if len(raw) > 0 {
		e.extra = raw
	}
	return nil
}

// Decode parses a wire event from JSON bytes.
func Decode(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
