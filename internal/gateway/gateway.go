// ABOUTME: EventGateway: the single entry point every event in the network passes through.
// ABOUTME: Validates, dedupes, dispatches to mods, fans out to subscriber queues.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openagents/openagents/internal/agent"
	"github.com/openagents/openagents/internal/auth"
	"github.com/openagents/openagents/internal/channel"
	"github.com/openagents/openagents/internal/dedupe"
	"github.com/openagents/openagents/internal/event"
	"github.com/openagents/openagents/internal/mods"
	"github.com/openagents/openagents/internal/subscription"
)

// ErrVisibility indicates a subscription reaches into events the agent has no
// right to observe.
var ErrVisibility = errors.New("subscription not permitted")

// SystemSourceID is the source ID used for events the gateway itself emits.
const SystemSourceID = "system:system"

// Params configures a Gateway. Registries are required; the rest is optional.
type Params struct {
	NetworkName string
	NetworkID   string

	Agents        *agent.Registry
	Channels      *channel.Registry
	Subscriptions *subscription.Index
	Mods          *mods.Registry

	// Credentials issues and verifies agent credentials. Nil disables
	// credential-based reconnection.
	Credentials *auth.Credentials

	// HistorySize bounds the diagnostic event ring (default 10,000).
	HistorySize int

	// DedupeTTL enables the replay seen-set when positive.
	DedupeTTL  time.Duration
	DedupeSize int

	Metrics *Metrics
	Logger  *slog.Logger
}

// Gateway routes every event: validation, mod dispatch, response correlation,
// and visibility-filtered fan-out to per-agent queues.
type Gateway struct {
	networkName string
	networkID   string

	agents   *agent.Registry
	channels *channel.Registry
	subs     *subscription.Index
	mods     *mods.Registry
	creds    *auth.Credentials

	inflight *inflightTable
	history  *historyRing
	seen     *dedupe.Cache
	metrics  *Metrics
	system   map[string]systemHandler
	logger   *slog.Logger
	started  time.Time
}

// New creates a Gateway and binds it to the mod registry as the mods' network
// reference.
func New(p Params) *Gateway {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	g := &Gateway{
		networkName: p.NetworkName,
		networkID:   p.NetworkID,
		agents:      p.Agents,
		channels:    p.Channels,
		subs:        p.Subscriptions,
		mods:        p.Mods,
		creds:       p.Credentials,
		history:     newHistoryRing(p.HistorySize),
		metrics:     metrics,
		logger:      logger.With("component", "event-gateway"),
		started:     time.Now(),
	}
	g.inflight = newInflightTable(func(n int) {
		metrics.InflightResponses.Set(float64(n))
	})
	if p.DedupeTTL > 0 {
		size := p.DedupeSize
		if size <= 0 {
			size = 100_000
		}
		g.seen = dedupe.New(p.DedupeTTL, size)
	}
	g.system = g.systemHandlers()

	g.agents.OnDrop(func(agentID string) {
		g.metrics.EventsDropped.WithLabelValues(agentID).Inc()
	})
	g.mods.BindGateway(g)
	return g
}

// ProcessEvent is the single entry point for every event. It validates the
// event, opens the response slot before any dispatch (so reentrant responses
// from mods can resolve it), runs system or mod handlers, fans out to
// subscriber queues, and records history and metrics.
//
// The returned response is the aggregate of any synchronous handler
// responses; a plain acknowledgement otherwise. Validation failures return an
// error wrapping event.ErrValidation and leave no trace in queues or history.
func (g *Gateway) ProcessEvent(ctx context.Context, ev *event.Event) (*event.Response, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	if g.seen != nil && g.seen.SeenOrRemember(ev.ID) {
		g.metrics.DuplicateEvents.Inc()
		g.logger.Debug("duplicate event ignored", "event_id", ev.ID, "event_name", ev.Name)
		return event.OK("duplicate event ignored", nil), nil
	}

	g.metrics.EventsTotal.Inc()
	g.metrics.EventsByName.WithLabelValues(ev.Name).Inc()

	// The slot must exist before mod dispatch: a mod may answer by calling
	// ProcessEvent reentrantly with response_to set to this event's ID.
	if ev.RequiresResponse {
		g.inflight.create(ev.ID)
	}
	g.correlate(ev)

	responses := g.dispatch(ctx, ev)
	agg := event.Combine(responses)
	if agg != nil && !agg.Success {
		g.metrics.DispatchFailures.Inc()
	}
	if agg != nil && ev.RequiresResponse {
		g.inflight.resolve(ev.ID, agg)
	}

	g.fanOut(ev)
	g.history.append(ev)

	if agg == nil {
		agg = event.OK("", nil)
	}
	return agg, nil
}

// correlate resolves the in-flight slot an event answers, if any. An unknown
// response_to is ignored by contract. Events carrying only the historical
// payload request_id still resolve, with a deprecation warning.
func (g *Gateway) correlate(ev *event.Event) {
	if ev.ResponseTo != "" {
		if g.inflight.resolve(ev.ResponseTo, responseFromEvent(ev)) {
			g.logger.Debug("response correlated", "event_id", ev.ID, "response_to", ev.ResponseTo)
		}
		return
	}
	if requestID, ok := ev.PayloadString("request_id"); ok && g.inflight.has(requestID) {
		g.metrics.LegacyCorrelations.Inc()
		g.logger.Warn("legacy request_id correlation; set response_to instead",
			"event_id", ev.ID,
			"request_id", requestID,
			"source_id", ev.SourceID,
		)
		g.inflight.resolve(requestID, responseFromEvent(ev))
	}
}

// responseFromEvent converts a response event into the Response handed to the
// original emitter.
func responseFromEvent(ev *event.Event) *event.Response {
	resp := &event.Response{Success: true, Data: ev.Payload}
	if ok, present := ev.PayloadBool("success"); present {
		resp.Success = ok
	}
	if msg, present := ev.PayloadString("message"); present {
		resp.Message = msg
	}
	return resp
}

// dispatch routes an event to the gateway's own system handlers or, when a
// mod is addressed, to the mod registry. Only the reserved system event names
// are claimed by the gateway; other system.* names flow to mods like any
// other event.
func (g *Gateway) dispatch(ctx context.Context, ev *event.Event) []*event.Response {
	if handler, ok := g.system[ev.Name]; ok {
		return []*event.Response{handler(ctx, ev)}
	}

	if ev.RelevantMod == "" {
		return nil
	}
	if !g.mods.Has(ev.RelevantMod) {
		g.logger.Warn("event addressed to unknown mod",
			"event_id", ev.ID,
			"event_name", ev.Name,
			"relevant_mod", ev.RelevantMod,
		)
		return []*event.Response{event.Fail(fmt.Sprintf("unknown mod %q", ev.RelevantMod))}
	}
	return g.mods.Dispatch(ctx, ev)
}

// fanOut enqueues the event to every subscriber it is visible to. Delivery
// is at most once per agent even when several of the agent's subscriptions
// match. Queue-full and unknown-agent conditions never fail the event.
func (g *Gateway) fanOut(ev *event.Event) {
	if ev.Visibility == event.VisibilityModOnly {
		return
	}

	isMember := func(agentID, ch string) bool { return g.channels.IsMember(ch, agentID) }

	delivered := make(map[string]struct{})
	for _, sub := range g.subs.Match(ev, isMember) {
		if _, done := delivered[sub.AgentID]; done {
			continue
		}
		delivered[sub.AgentID] = struct{}{}

		if err := g.agents.Enqueue(sub.AgentID, ev); err != nil {
			// Unregistered subscriber: stale index entry, drop silently.
			g.logger.Debug("skipping delivery to unregistered agent",
				"agent_id", sub.AgentID,
				"event_id", ev.ID,
			)
		}
	}
}

// ResponseFor blocks until the response for an awaited event arrives or the
// timeout elapses. The in-flight slot is removed either way.
func (g *Gateway) ResponseFor(ctx context.Context, eventID string, timeout time.Duration) (*event.Response, error) {
	return g.inflight.await(ctx, eventID, timeout)
}

// Subscribe adds a subscription for a registered agent. A channel filter on a
// channel the agent is not a member of fails with ErrVisibility.
func (g *Gateway) Subscribe(sub *subscription.Subscription) (string, error) {
	if sub == nil {
		return "", subscription.ErrNoPatterns
	}
	if !g.agents.IsRegistered(sub.AgentID) {
		return "", agent.ErrAgentNotFound
	}
	if sub.ChannelFilter != "" && !g.channels.IsMember(sub.ChannelFilter, sub.AgentID) {
		return "", fmt.Errorf("%w: agent %q is not a member of channel %q",
			ErrVisibility, sub.AgentID, sub.ChannelFilter)
	}
	id, err := g.subs.Add(sub)
	if err != nil {
		return "", err
	}
	g.agents.Touch(sub.AgentID)
	return id, nil
}

// Unsubscribe removes a subscription. Unknown IDs return false and change
// nothing.
func (g *Gateway) Unsubscribe(subscriptionID string) bool {
	return g.subs.Remove(subscriptionID)
}

// Poll drains up to max events from an agent's queue, blocking up to timeout.
func (g *Gateway) Poll(ctx context.Context, agentID string, max int, timeout time.Duration) ([]*event.Event, error) {
	return g.agents.Poll(ctx, agentID, max, timeout)
}

// RegistrationResult is returned by RegisterAgent.
type RegistrationResult struct {
	NetworkName string
	NetworkID   string
	Credential  string
}

// RegisterAgent connects an agent. A duplicate ID fails unless the caller
// forces reconnection or presents a valid prior credential for that ID, in
// which case the stale registration is torn down first.
func (g *Gateway) RegisterAgent(ctx context.Context, agentID string, metadata map[string]any, credential string, forceReconnect bool) (*RegistrationResult, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: empty agent_id", agent.ErrAgentNotFound)
	}

	if g.agents.IsRegistered(agentID) {
		if !forceReconnect && !g.credentialValid(agentID, credential) {
			return nil, agent.ErrAgentAlreadyRegistered
		}
		g.logger.Info("replacing stale agent registration", "agent_id", agentID, "forced", forceReconnect)
		g.UnregisterAgent(ctx, agentID)
	}

	if _, err := g.agents.Register(agentID, metadata); err != nil {
		return nil, err
	}

	result := &RegistrationResult{NetworkName: g.networkName, NetworkID: g.networkID}
	if g.creds != nil {
		token, err := g.creds.Issue(agentID)
		if err != nil {
			g.agents.Unregister(agentID)
			return nil, fmt.Errorf("issuing credential: %w", err)
		}
		result.Credential = token
	}

	g.mods.NotifyAgentRegistered(agentID)
	g.emitSystem(ctx, "system.agent.registered", map[string]any{"agent_id": agentID})
	return result, nil
}

func (g *Gateway) credentialValid(agentID, credential string) bool {
	if g.creds == nil || credential == "" {
		return false
	}
	subject, err := g.creds.Verify(credential)
	return err == nil && subject == agentID
}

// UnregisterAgent disconnects an agent and cascades: its subscriptions, its
// channel memberships, and its queue are all removed. Returns false if the
// agent was not registered.
func (g *Gateway) UnregisterAgent(ctx context.Context, agentID string) bool {
	if !g.agents.IsRegistered(agentID) {
		return false
	}

	removedSubs := g.subs.RemoveForAgent(agentID)
	removedChannels := g.channels.RemoveAgent(agentID)
	g.agents.Unregister(agentID)
	g.mods.NotifyAgentUnregistered(agentID)

	g.logger.Info("agent unregister cascade complete",
		"agent_id", agentID,
		"subscriptions_removed", removedSubs,
		"channels_left", len(removedChannels),
	)
	g.emitSystem(ctx, "system.agent.unregistered", map[string]any{"agent_id": agentID})
	return true
}

// emitSystem publishes a gateway-originated notification event. Failures are
// logged, never propagated; notifications are best-effort.
func (g *Gateway) emitSystem(ctx context.Context, name string, payload map[string]any) {
	ev, err := event.New(event.Params{
		Name:       name,
		SourceID:   SystemSourceID,
		SourceType: event.SourceMod,
		Payload:    payload,
		Visibility: event.VisibilityNetwork,
	})
	if err != nil {
		g.logger.Error("building system event", "event_name", name, "error", err)
		return
	}
	if _, err := g.ProcessEvent(ctx, ev); err != nil {
		g.logger.Error("emitting system event", "event_name", name, "error", err)
	}
}

// ChannelInfo describes one channel and its membership.
type ChannelInfo struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// Channels lists every channel with its members, sorted by name.
func (g *Gateway) Channels() []ChannelInfo {
	names := g.channels.List()
	out := make([]ChannelInfo, 0, len(names))
	for _, name := range names {
		members, err := g.channels.Members(name)
		if err != nil {
			continue
		}
		out = append(out, ChannelInfo{Name: name, Members: members})
	}
	return out
}

// Agents lists connected agents, sorted by ID.
func (g *Gateway) Agents() []agent.Info {
	return g.agents.List()
}

// History returns up to limit of the most recent events in insertion order.
func (g *Gateway) History(limit int) []*event.Event {
	return g.history.recent(limit)
}

// InflightCount reports the number of open response slots.
func (g *Gateway) InflightCount() int {
	return g.inflight.len()
}

// Uptime reports how long the gateway has been running.
func (g *Gateway) Uptime() time.Duration {
	return time.Since(g.started)
}
