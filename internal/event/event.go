// ABOUTME: Event is the single interaction record type for the whole network.
// ABOUTME: Every agent, mod, and system interaction is one immutable Event value.

package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Validation errors. All wrap ErrValidation so callers can classify with errors.Is.
var (
	ErrValidation = errors.New("event validation failed")

	ErrInvalidName     = fmt.Errorf("%w: invalid event name", ErrValidation)
	ErrPlaceholderName = fmt.Errorf("%w: placeholder event name", ErrValidation)
	ErrMissingSource   = fmt.Errorf("%w: source_id is required", ErrValidation)
	ErrInvalidSource   = fmt.Errorf("%w: invalid source_type", ErrValidation)
	ErrEmptyAllowlist  = fmt.Errorf("%w: restricted visibility requires allowed_agents", ErrValidation)
	ErrInvalidVisibility = fmt.Errorf("%w: unknown visibility", ErrValidation)
)

// SourceType identifies what kind of component originated an event.
type SourceType string

const (
	SourceAgent SourceType = "agent"
	SourceMod   SourceType = "mod"
)

// Visibility is the access-control label on an event. It controls which agents
// a fan-out may deliver to; mods always see events dispatched to them.
type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityNetwork    Visibility = "network"
	VisibilityChannel    Visibility = "channel"
	VisibilityDirect     Visibility = "direct"
	VisibilityRestricted Visibility = "restricted"
	VisibilityModOnly    Visibility = "mod_only"
)

func (v Visibility) valid() bool {
	switch v {
	case VisibilityPublic, VisibilityNetwork, VisibilityChannel,
		VisibilityDirect, VisibilityRestricted, VisibilityModOnly:
		return true
	}
	return false
}

// Event is an immutable record of a single interaction. Construct via New;
// direct literal construction skips validation and timestamp assignment.
type Event struct {
	ID         string
	Name       string
	Timestamp  int64
	SourceID   string
	SourceType SourceType

	DestinationID string
	TargetChannel string
	RelevantMod   string

	RequiresResponse bool
	ResponseTo       string

	Payload  map[string]any
	Metadata map[string]any
	Text     string

	Visibility    Visibility
	AllowedAgents []string

	// extra holds unknown wire fields so they survive a decode/encode round trip.
	extra map[string]json.RawMessage
}

// Params holds the inputs for constructing an Event.
type Params struct {
	Name       string
	SourceID   string
	SourceType SourceType

	DestinationID string
	TargetChannel string
	RelevantMod   string

	RequiresResponse bool
	ResponseTo       string

	Payload  map[string]any
	Metadata map[string]any
	Text     string

	Visibility    Visibility
	AllowedAgents []string
}

// lastStamp backs the monotonic event timestamp. Two events constructed in the
// same nanosecond still get strictly increasing stamps.
var lastStamp atomic.Int64

func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		prev := lastStamp.Load()
		if now <= prev {
			now = prev + 1
		}
		if lastStamp.CompareAndSwap(prev, now) {
			return now
		}
	}
}

// New constructs a validated Event. The ID and timestamp are assigned here.
// Visibility is auto-derived from the targeting fields only when the caller
// left it at the default (empty or "network"); an explicit non-default value
// always wins and is never re-derived.
func New(p Params) (*Event, error) {
	if err := ValidateName(p.Name); err != nil {
		return nil, err
	}
	if p.SourceID == "" {
		return nil, ErrMissingSource
	}
	st := p.SourceType
	if st == "" {
		st = SourceAgent
	}
	if st != SourceAgent && st != SourceMod {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSource, p.SourceType)
	}

	vis := p.Visibility
	switch {
	case vis == "" || vis == VisibilityNetwork:
		vis = deriveVisibility(p)
	case !vis.valid():
		return nil, fmt.Errorf("%w: %q", ErrInvalidVisibility, p.Visibility)
	}
	if vis == VisibilityRestricted && len(p.AllowedAgents) == 0 {
		return nil, ErrEmptyAllowlist
	}

	allowed := append([]string(nil), p.AllowedAgents...)
	sort.Strings(allowed)

	ev := &Event{
		ID:               uuid.New().String(),
		Name:             p.Name,
		Timestamp:        nextTimestamp(),
		SourceID:         p.SourceID,
		SourceType:       st,
		DestinationID:    p.DestinationID,
		TargetChannel:    p.TargetChannel,
		RelevantMod:      p.RelevantMod,
		RequiresResponse: p.RequiresResponse,
		ResponseTo:       p.ResponseTo,
		Payload:          p.Payload,
		Metadata:         p.Metadata,
		Text:             p.Text,
		Visibility:       vis,
		AllowedAgents:    allowed,
	}
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]any{}
	}
	return ev, nil
}

// deriveVisibility applies the default-visibility rules: direct when a single
// recipient is named, channel when a channel is targeted, mod-only when the
// event is addressed to a mod and nothing else.
func deriveVisibility(p Params) Visibility {
	switch {
	case p.DestinationID != "":
		return VisibilityDirect
	case p.TargetChannel != "":
		return VisibilityChannel
	case p.RelevantMod != "":
		return VisibilityModOnly
	}
	return VisibilityNetwork
}

// Validate re-checks the construction invariants. Events built with New always
// pass; transports call this on decoded wire events before injection.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrValidation)
	}
	if err := ValidateName(e.Name); err != nil {
		return err
	}
	if e.SourceID == "" {
		return ErrMissingSource
	}
	if e.SourceType != SourceAgent && e.SourceType != SourceMod {
		return fmt.Errorf("%w: %q", ErrInvalidSource, e.SourceType)
	}
	if !e.Visibility.valid() {
		return fmt.Errorf("%w: %q", ErrInvalidVisibility, e.Visibility)
	}
	if e.Visibility == VisibilityRestricted && len(e.AllowedAgents) == 0 {
		return ErrEmptyAllowlist
	}
	return nil
}

// VisibleTo reports whether the event may be delivered to the given agent.
// isMember answers channel membership for that agent; it is only consulted for
// channel-visibility events.
func (e *Event) VisibleTo(agentID string, isMember func(channel string) bool) bool {
	if agentID == e.SourceID && e.Visibility != VisibilityModOnly {
		return true
	}
	switch e.Visibility {
	case VisibilityPublic, VisibilityNetwork:
		return true
	case VisibilityDirect:
		return agentID == e.DestinationID
	case VisibilityChannel:
		return isMember != nil && isMember(e.TargetChannel)
	case VisibilityRestricted:
		for _, allowed := range e.AllowedAgents {
			if allowed == agentID {
				return true
			}
		}
		return false
	case VisibilityModOnly:
		return false
	}
	return false
}

// Finalize assigns an ID and timestamp to a decoded wire event that lacks
// them. Transports call this before injecting client-built events.
func (e *Event) Finalize() {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp == 0 {
		e.Timestamp = nextTimestamp()
	}
}

// PayloadString returns a string payload field, if present.
func (e *Event) PayloadString(key string) (string, bool) {
	s, ok := e.Payload[key].(string)
	return s, ok
}

// PayloadBool returns a bool payload field, if present.
func (e *Event) PayloadBool(key string) (bool, bool) {
	b, ok := e.Payload[key].(bool)
	return b, ok
}

// PayloadInt returns an integer payload field, accepting the float64 form that
// JSON decoding produces.
func (e *Event) PayloadInt(key string) (int, bool) {
	switch v := e.Payload[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// PayloadMap returns a nested object payload field, if present.
func (e *Event) PayloadMap(key string) (map[string]any, bool) {
	m, ok := e.Payload[key].(map[string]any)
	return m, ok
}
