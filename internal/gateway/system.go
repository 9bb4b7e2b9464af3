// ABOUTME: Reserved system.* event handlers served by the gateway itself.
// ABOUTME: Registration, listing, channel membership, manifests, network stats.

package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/openagents/openagents/internal/event"
)

type systemHandler func(ctx context.Context, ev *event.Event) *event.Response

// systemHandlers builds the reserved-name dispatch table. These names are
// owned by the gateway; mods cannot bind them.
func (g *Gateway) systemHandlers() map[string]systemHandler {
	return map[string]systemHandler{
		"system.agent.register":   g.handleAgentRegister,
		"system.agent.unregister": g.handleAgentUnregister,
		"system.agent.list":       g.handleAgentList,
		"system.channel.list":     g.handleChannelList,
		"system.channel.join":     g.handleChannelJoin,
		"system.channel.leave":    g.handleChannelLeave,
		"system.mod.list":         g.handleModList,
		"system.mod.manifest":     g.handleModManifest,
		"system.network.stats":    g.handleNetworkStats,
	}
}

// IsSystemEvent reports whether the name belongs to the gateway's reserved
// handler table.
func (g *Gateway) IsSystemEvent(name string) bool {
	_, ok := g.system[name]
	return ok
}

// subjectAgent resolves which agent a system event acts on: an explicit
// payload agent_id, falling back to the event source.
func subjectAgent(ev *event.Event) string {
	if id, ok := ev.PayloadString("agent_id"); ok && id != "" {
		return id
	}
	return ev.SourceID
}

func (g *Gateway) handleAgentRegister(ctx context.Context, ev *event.Event) *event.Response {
	agentID := subjectAgent(ev)
	metadata, _ := ev.PayloadMap("metadata")
	credential, _ := ev.PayloadString("credential")
	force, _ := ev.PayloadBool("force_reconnect")

	result, err := g.RegisterAgent(ctx, agentID, metadata, credential, force)
	if err != nil {
		return event.Fail(err.Error())
	}
	data := map[string]any{
		"agent_id":     agentID,
		"network_name": result.NetworkName,
		"network_id":   result.NetworkID,
	}
	if result.Credential != "" {
		data["credential"] = result.Credential
	}
	return event.OK("agent registered", data)
}

func (g *Gateway) handleAgentUnregister(ctx context.Context, ev *event.Event) *event.Response {
	agentID := subjectAgent(ev)
	if !g.UnregisterAgent(ctx, agentID) {
		return event.Fail(fmt.Sprintf("agent %q is not registered", agentID))
	}
	return event.OK("agent unregistered", map[string]any{"agent_id": agentID})
}

func (g *Gateway) handleAgentList(ctx context.Context, ev *event.Event) *event.Response {
	infos := g.agents.List()
	agents := make([]any, 0, len(infos))
	for _, info := range infos {
		agents = append(agents, map[string]any{
			"agent_id":  info.ID,
			"metadata":  info.Metadata,
			"last_seen": info.LastSeen.UTC().Format(time.RFC3339),
			"queued":    info.Queued,
		})
	}
	return event.OK("", map[string]any{"agents": agents})
}

func (g *Gateway) handleChannelList(ctx context.Context, ev *event.Event) *event.Response {
	names := g.channels.List()
	channels := make([]any, 0, len(names))
	for _, name := range names {
		members, err := g.channels.Members(name)
		if err != nil {
			continue // removed between List and Members
		}
		channels = append(channels, map[string]any{
			"name":    name,
			"members": len(members),
		})
	}
	return event.OK("", map[string]any{"channels": channels})
}

func (g *Gateway) handleChannelJoin(ctx context.Context, ev *event.Event) *event.Response {
	name, ok := ev.PayloadString("channel")
	if !ok || name == "" {
		return event.Fail("payload field channel is required")
	}
	agentID := subjectAgent(ev)
	if !g.agents.IsRegistered(agentID) {
		return event.Fail(fmt.Sprintf("agent %q is not registered", agentID))
	}
	g.channels.AddMember(name, agentID)
	return event.OK("joined channel", map[string]any{"channel": name, "agent_id": agentID})
}

func (g *Gateway) handleChannelLeave(ctx context.Context, ev *event.Event) *event.Response {
	name, ok := ev.PayloadString("channel")
	if !ok || name == "" {
		return event.Fail("payload field channel is required")
	}
	agentID := subjectAgent(ev)
	if !g.channels.RemoveMember(name, agentID) {
		return event.Fail(fmt.Sprintf("agent %q is not a member of channel %q", agentID, name))
	}
	return event.OK("left channel", map[string]any{"channel": name, "agent_id": agentID})
}

func (g *Gateway) handleModList(ctx context.Context, ev *event.Event) *event.Response {
	names := g.mods.List()
	list := make([]any, 0, len(names))
	for _, name := range names {
		list = append(list, name)
	}
	return event.OK("", map[string]any{"mods": list})
}

func (g *Gateway) handleModManifest(ctx context.Context, ev *event.Event) *event.Response {
	name, ok := ev.PayloadString("mod")
	if !ok || name == "" {
		return event.Fail("payload field mod is required")
	}
	manifest, err := g.mods.ManifestFor(name)
	if err != nil {
		return event.Fail(err.Error())
	}
	events := make([]any, 0, len(manifest.Events))
	for _, e := range manifest.Events {
		events = append(events, e)
	}
	return event.OK("", map[string]any{
		"name":     manifest.Name,
		"events":   events,
		"observer": manifest.Observer,
	})
}

func (g *Gateway) handleNetworkStats(ctx context.Context, ev *event.Event) *event.Response {
	return event.OK("", map[string]any{
		"network_name":   g.networkName,
		"network_id":     g.networkID,
		"uptime_seconds": int(g.Uptime().Seconds()),
		"agents":         g.agents.Count(),
		"channels":       len(g.channels.List()),
		"mods":           len(g.mods.List()),
		"inflight":       g.InflightCount(),
		"history":        g.history.len(),
	})
}
