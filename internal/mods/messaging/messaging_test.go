// ABOUTME: Messaging mod tests: idempotent redelivery, receipts, stats.
// ABOUTME: Runs against a real gateway so follow-up events flow end to end.

package messaging

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openagents/openagents/internal/agent"
	"github.com/openagents/openagents/internal/channel"
	"github.com/openagents/openagents/internal/event"
	"github.com/openagents/openagents/internal/gateway"
	"github.com/openagents/openagents/internal/mods"
	"github.com/openagents/openagents/internal/subscription"
)

func newNetwork(t *testing.T) (*gateway.Gateway, *Mod) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := mods.NewRegistry(logger)
	gw := gateway.New(gateway.Params{
		NetworkName:   "testnet",
		NetworkID:     "net-test",
		Agents:        agent.NewRegistry(100, logger),
		Channels:      channel.NewRegistry(logger),
		Subscriptions: subscription.NewIndex(),
		Mods:          registry,
		HistorySize:   64,
		Logger:        logger,
	})

	m := New()
	require.NoError(t, registry.RegisterMod(context.Background(), m))
	return gw, m
}

func direct(t *testing.T, dest string, payload map[string]any) *event.Event {
	t.Helper()
	ev, err := event.New(event.Params{
		Name:          "agent.direct_message.sent",
		SourceID:      "a",
		DestinationID: dest,
		RelevantMod:   ModName,
		Visibility:    event.VisibilityDirect,
		Payload:       payload,
	})
	require.NoError(t, err)
	return ev
}

func TestDirectMessage(t *testing.T) {
	gw, _ := newNetwork(t)
	ctx := context.Background()

	ev := direct(t, "b", map[string]any{"text": "hi"})
	resp, err := gw.ProcessEvent(ctx, ev)
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Equal(t, ev.ID, resp.Data["message_id"])
	assert.Equal(t, "b", resp.Data["destination"])
}

func TestDirectMessage_MissingDestination(t *testing.T) {
	gw, _ := newNetwork(t)

	ev, err := event.New(event.Params{
		Name:        "agent.direct_message.sent",
		SourceID:    "a",
		RelevantMod: ModName,
	})
	require.NoError(t, err)

	resp, err := gw.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "destination_id")
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	_, m := newNetwork(t)
	ctx := context.Background()

	ev := direct(t, "b", nil)
	first, err := m.handleDirect(ctx, ev)
	require.NoError(t, err)
	second, err := m.handleDirect(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, first, second, "redelivery must return the original result")

	stats, err := m.handleStats(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Data["direct_messages"], "side effects run once")
}

func TestDeliveryReceipt(t *testing.T) {
	gw, _ := newNetwork(t)
	ctx := context.Background()

	// The sender subscribes to receipts.
	_, err := gw.RegisterAgent(ctx, "a", nil, "", false)
	require.NoError(t, err)
	_, err = gw.Subscribe(&subscription.Subscription{
		AgentID:  "a",
		Patterns: []string{"agent.direct_message.delivered"},
	})
	require.NoError(t, err)

	ev := direct(t, "b", map[string]any{"expect_receipt": true})
	resp, err := gw.ProcessEvent(ctx, ev)
	require.NoError(t, err)
	require.True(t, resp.Success)

	got, err := gw.Poll(ctx, "a", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "agent.direct_message.delivered", got[0].Name)
	assert.Equal(t, ev.ID, got[0].ResponseTo)
	assert.Equal(t, ev.ID, got[0].Payload["message_id"])
}

func TestChannelStats(t *testing.T) {
	gw, _ := newNetwork(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ev, err := event.New(event.Params{
			Name:          "channel.message.posted",
			SourceID:      "a",
			TargetChannel: "#general",
			RelevantMod:   ModName,
		})
		require.NoError(t, err)
		_, err = gw.ProcessEvent(ctx, ev)
		require.NoError(t, err)
	}

	stats, err := event.New(event.Params{
		Name:        "messaging.stats.requested",
		SourceID:    "a",
		RelevantMod: ModName,
	})
	require.NoError(t, err)
	resp, err := gw.ProcessEvent(ctx, stats)
	require.NoError(t, err)
	require.True(t, resp.Success)

	channels, ok := resp.Data["channel_messages"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, channels["#general"])
}
