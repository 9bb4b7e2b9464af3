// ABOUTME: The mod contract: typed handler tables, lifecycle, and gateway binding.
// ABOUTME: Mods are the extension surface; they never see transports or queues.

package mods

import (
	"context"

	"github.com/openagents/openagents/internal/event"
)

// Handler processes one event. A nil response with a nil error means the
// handler observed the event but has nothing to say.
type Handler func(ctx context.Context, ev *event.Event) (*event.Response, error)

// EventGateway is the one capability a mod gets from the network: injecting
// follow-up events. Defined here so mods and the gateway need no import cycle.
type EventGateway interface {
	ProcessEvent(ctx context.Context, ev *event.Event) (*event.Response, error)
}

// Mod is a pluggable component handling a declared set of event names.
//
// Handlers() keys are exact event names or prefix patterns ending in ".*".
// The table is read once at registration; changing it afterwards has no
// effect. Handlers must be idempotent with respect to their own externally
// visible side effects keyed by event ID: a redelivered event must be
// detected and answered with the same response.
type Mod interface {
	// Name returns the stable fully qualified mod name, dotted lowercase,
	// e.g. "openagents.mods.workspace.messaging".
	Name() string

	// Handlers returns the event-name-to-handler table.
	Handlers() map[string]Handler

	// Initialize prepares the mod before any dispatch. Called once by
	// RegisterMod.
	Initialize(ctx context.Context) error

	// BindNetwork hands the mod its gateway reference for follow-up events.
	// Called after Initialize and before the first dispatch.
	BindNetwork(gw EventGateway)

	// Shutdown releases mod resources. No dispatches arrive afterwards.
	Shutdown(ctx context.Context) error
}

// AgentObserver is an optional mod extension: mods implementing it are told
// when the agent registry changes.
type AgentObserver interface {
	AgentRegistered(agentID string)
	AgentUnregistered(agentID string)
}

// Manifest describes a registered mod for the system.mod.manifest event.
type Manifest struct {
	Name     string   `json:"name" yaml:"name"`
	Events   []string `json:"events" yaml:"events"`
	Observer bool     `json:"observes_agents" yaml:"observes_agents"`
}
