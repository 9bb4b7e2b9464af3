// ABOUTME: In-process agent client: Emit/Subscribe/Poll against a gateway.
// ABOUTME: Emit is synchronous; requires_response events block on the response table.

package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openagents/openagents/internal/event"
	"github.com/openagents/openagents/internal/gateway"
	"github.com/openagents/openagents/internal/subscription"
)

// ErrNotRegistered indicates the client has not registered yet.
var ErrNotRegistered = errors.New("client is not registered")

// DefaultEmitTimeout bounds how long Emit waits for a requires_response event.
const DefaultEmitTimeout = 30 * time.Second

// Network is the gateway surface the client drives. *gateway.Gateway
// implements it; tests may substitute their own.
type Network interface {
	ProcessEvent(ctx context.Context, ev *event.Event) (*event.Response, error)
	ResponseFor(ctx context.Context, eventID string, timeout time.Duration) (*event.Response, error)
	RegisterAgent(ctx context.Context, agentID string, metadata map[string]any, credential string, forceReconnect bool) (*gateway.RegistrationResult, error)
	UnregisterAgent(ctx context.Context, agentID string) bool
	Subscribe(sub *subscription.Subscription) (string, error)
	Unsubscribe(subscriptionID string) bool
	Poll(ctx context.Context, agentID string, max int, timeout time.Duration) ([]*event.Event, error)
}

// Filters narrows a subscription beyond its name patterns.
type Filters struct {
	Mod     string
	Channel string
	Agents  []string
}

// Client is one agent's handle on the network.
type Client struct {
	network Network
	agentID string

	emitTimeout time.Duration
	credential  string
	registered  bool
}

// Option configures a Client.
type Option func(*Client)

// WithEmitTimeout overrides the requires_response wait bound.
func WithEmitTimeout(d time.Duration) Option {
	return func(c *Client) { c.emitTimeout = d }
}

// New creates a client for the given agent ID. Call Register before emitting.
func New(network Network, agentID string, opts ...Option) *Client {
	c := &Client{
		network:     network,
		agentID:     agentID,
		emitTimeout: DefaultEmitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AgentID returns the identity this client emits as.
func (c *Client) AgentID() string {
	return c.agentID
}

// Credential returns the credential issued at registration, if any.
func (c *Client) Credential() string {
	return c.credential
}

// Register connects the agent. Reconnecting after a dropped session reuses
// the previously issued credential to reclaim the ID.
func (c *Client) Register(ctx context.Context, metadata map[string]any) error {
	result, err := c.network.RegisterAgent(ctx, c.agentID, metadata, c.credential, false)
	if err != nil {
		return fmt.Errorf("registering agent %q: %w", c.agentID, err)
	}
	c.credential = result.Credential
	c.registered = true
	return nil
}

// Unregister disconnects the agent and cascades its state away.
func (c *Client) Unregister(ctx context.Context) {
	c.network.UnregisterAgent(ctx, c.agentID)
	c.registered = false
}

// Emit injects one event, with this client as source. When the event requires
// a response, Emit blocks until one arrives or the emit timeout elapses.
func (c *Client) Emit(ctx context.Context, p event.Params) (*event.Response, error) {
	if !c.registered {
		return nil, ErrNotRegistered
	}
	p.SourceID = c.agentID
	if p.SourceType == "" {
		p.SourceType = event.SourceAgent
	}

	ev, err := event.New(p)
	if err != nil {
		return nil, err
	}

	resp, err := c.network.ProcessEvent(ctx, ev)
	if err != nil {
		return nil, err
	}
	if !ev.RequiresResponse {
		return resp, nil
	}
	return c.network.ResponseFor(ctx, ev.ID, c.emitTimeout)
}

// Subscribe registers interest in matching event names.
func (c *Client) Subscribe(patterns []string, filters Filters) (string, error) {
	if !c.registered {
		return "", ErrNotRegistered
	}
	return c.network.Subscribe(&subscription.Subscription{
		AgentID:       c.agentID,
		Patterns:      patterns,
		ModFilter:     filters.Mod,
		ChannelFilter: filters.Channel,
		AgentFilter:   filters.Agents,
	})
}

// Unsubscribe removes a prior subscription.
func (c *Client) Unsubscribe(subscriptionID string) bool {
	return c.network.Unsubscribe(subscriptionID)
}

// Poll drains up to max events from this agent's queue, blocking up to
// timeout for the first one.
func (c *Client) Poll(ctx context.Context, max int, timeout time.Duration) ([]*event.Event, error) {
	if !c.registered {
		return nil, ErrNotRegistered
	}
	return c.network.Poll(ctx, c.agentID, max, timeout)
}

// SendDirect is a convenience wrapper for a direct message event.
func (c *Client) SendDirect(ctx context.Context, destination, text string) (*event.Response, error) {
	return c.Emit(ctx, event.Params{
		Name:          "agent.direct_message.sent",
		DestinationID: destination,
		Text:          text,
		Payload:       map[string]any{"text": text},
	})
}

// PostToChannel is a convenience wrapper for a channel broadcast event.
func (c *Client) PostToChannel(ctx context.Context, channel, text string) (*event.Response, error) {
	return c.Emit(ctx, event.Params{
		Name:          "channel.message.posted",
		TargetChannel: channel,
		Text:          text,
		Payload:       map[string]any{"text": text},
	})
}
