// ABOUTME: Workspace messaging mod: direct and channel message handling.
// ABOUTME: Idempotent per event ID; optional delivery receipts via response_to.

package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/openagents/openagents/internal/dedupe"
	"github.com/openagents/openagents/internal/event"
	"github.com/openagents/openagents/internal/mods"
)

// ModName is the registered name of the messaging mod.
const ModName = "openagents.mods.messaging"

// seenTTL bounds how long processed event IDs are remembered for idempotency.
const seenTTL = 10 * time.Minute

// Mod handles direct and channel messages addressed to it. Redelivery of an
// already processed event returns the original result without repeating side
// effects.
type Mod struct {
	gw   mods.EventGateway
	seen *dedupe.Cache

	mu            sync.Mutex
	directCount   int
	channelCounts map[string]int
}

// New creates the messaging mod.
func New() *Mod {
	return &Mod{
		seen:          dedupe.New(seenTTL, 10_000),
		channelCounts: make(map[string]int),
	}
}

func (m *Mod) Name() string { return ModName }

func (m *Mod) Handlers() map[string]mods.Handler {
	return map[string]mods.Handler{
		"agent.direct_message.sent": m.handleDirect,
		"channel.message.posted":    m.handleChannel,
		"messaging.stats.requested": m.handleStats,
	}
}

func (m *Mod) Initialize(ctx context.Context) error { return nil }

func (m *Mod) BindNetwork(gw mods.EventGateway) { m.gw = gw }

func (m *Mod) Shutdown(ctx context.Context) error { return nil }

// handleDirect acknowledges a direct message. The response is deterministic
// in the event ID, so a redelivered event yields the identical result.
func (m *Mod) handleDirect(ctx context.Context, ev *event.Event) (*event.Response, error) {
	if ev.DestinationID == "" {
		return event.Fail("direct message requires destination_id"), nil
	}

	duplicate := m.seen.SeenOrRemember(ev.ID)
	if !duplicate {
		m.mu.Lock()
		m.directCount++
		m.mu.Unlock()

		if receipt, _ := ev.PayloadBool("expect_receipt"); receipt && m.gw != nil {
			if err := m.sendReceipt(ctx, ev); err != nil {
				return event.Fail("sending delivery receipt: " + err.Error()), nil
			}
		}
	}

	return event.OK("delivered", map[string]any{
		"message_id":  ev.ID,
		"destination": ev.DestinationID,
	}), nil
}

// sendReceipt emits a follow-up event back to the sender, correlated to the
// original via response_to.
func (m *Mod) sendReceipt(ctx context.Context, original *event.Event) error {
	receipt, err := event.New(event.Params{
		Name:          "agent.direct_message.delivered",
		SourceID:      ModName,
		SourceType:    event.SourceMod,
		DestinationID: original.SourceID,
		ResponseTo:    original.ID,
		Payload: map[string]any{
			"message_id":  original.ID,
			"destination": original.DestinationID,
		},
	})
	if err != nil {
		return err
	}
	_, err = m.gw.ProcessEvent(ctx, receipt)
	return err
}

func (m *Mod) handleChannel(ctx context.Context, ev *event.Event) (*event.Response, error) {
	if ev.TargetChannel == "" {
		return event.Fail("channel message requires target_channel"), nil
	}

	if !m.seen.SeenOrRemember(ev.ID) {
		m.mu.Lock()
		m.channelCounts[ev.TargetChannel]++
		m.mu.Unlock()
	}

	return event.OK("posted", map[string]any{
		"message_id": ev.ID,
		"channel":    ev.TargetChannel,
	}), nil
}

func (m *Mod) handleStats(ctx context.Context, ev *event.Event) (*event.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	channels := make(map[string]any, len(m.channelCounts))
	for name, count := range m.channelCounts {
		channels[name] = count
	}
	return event.OK("", map[string]any{
		"direct_messages":  m.directCount,
		"channel_messages": channels,
	}), nil
}
