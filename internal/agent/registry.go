// ABOUTME: Registry of connected agents with per-agent bounded delivery queues.
// ABOUTME: Registration, unregistration, enqueue/poll, and liveness touch.

package agent

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/openagents/openagents/internal/event"
)

var (
	// ErrAgentAlreadyRegistered indicates an agent with the same ID is connected.
	ErrAgentAlreadyRegistered = errors.New("agent already registered")

	// ErrAgentNotFound indicates the specified agent is not registered.
	ErrAgentNotFound = errors.New("agent not found")
)

// DefaultQueueSize is the per-agent queue bound when none is configured.
const DefaultQueueSize = 1000

// Connection holds the registry's view of one connected agent.
type Connection struct {
	ID       string
	Metadata map[string]any

	mu       sync.Mutex
	lastSeen time.Time
	queue    *Queue
}

// LastSeen returns the time of the agent's last interaction with the network.
func (c *Connection) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// Info is the public snapshot of a connected agent.
type Info struct {
	ID       string         `json:"agent_id"`
	Metadata map[string]any `json:"metadata,omitempty"`
	LastSeen time.Time      `json:"last_seen"`
	Queued   int            `json:"queued"`
}

// Registry coordinates all connected agents and their delivery queues.
type Registry struct {
	mu        sync.RWMutex
	agents    map[string]*Connection
	queueSize int
	logger    *slog.Logger

	// onDrop is invoked (outside the registry lock) whenever a queue drops an
	// event on overflow. Wired to the gateway's events_dropped metric.
	onDrop func(agentID string)
}

// NewRegistry creates a Registry with the given per-agent queue bound.
func NewRegistry(queueSize int, logger *slog.Logger) *Registry {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		agents:    make(map[string]*Connection),
		queueSize: queueSize,
		logger:    logger.With("component", "agent-registry"),
	}
}

// OnDrop installs the queue-overflow callback.
func (r *Registry) OnDrop(fn func(agentID string)) {
	r.onDrop = fn
}

// Register adds a new agent. Returns ErrAgentAlreadyRegistered when the ID is
// taken.
func (r *Registry) Register(agentID string, metadata map[string]any) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[agentID]; exists {
		return nil, ErrAgentAlreadyRegistered
	}
	conn := &Connection{
		ID:       agentID,
		Metadata: metadata,
		lastSeen: time.Now(),
		queue:    newQueue(r.queueSize),
	}
	r.agents[agentID] = conn

	r.logger.Info("agent registered",
		"agent_id", agentID,
		"total_agents", len(r.agents),
	)
	return conn, nil
}

// Unregister removes an agent and discards its queue. Returns false if the
// agent was not registered.
func (r *Registry) Unregister(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.agents[agentID]
	if !exists {
		return false
	}
	delete(r.agents, agentID)
	r.logger.Info("agent unregistered",
		"agent_id", agentID,
		"discarded_events", conn.queue.Len(),
		"total_agents", len(r.agents),
	)
	return true
}

// IsRegistered reports whether an agent is connected.
func (r *Registry) IsRegistered(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[agentID]
	return ok
}

// Get returns a connection by agent ID.
func (r *Registry) Get(agentID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.agents[agentID]
	return conn, ok
}

// Enqueue places an event on an agent's queue without ever blocking the
// producer. An unknown agent returns ErrAgentNotFound (callers treat this as
// a silent drop). A full queue drops the event, logs, and fires the drop hook.
func (r *Registry) Enqueue(agentID string, ev *event.Event) error {
	conn, ok := r.Get(agentID)
	if !ok {
		return ErrAgentNotFound
	}
	if !conn.queue.Enqueue(ev) {
		r.logger.Warn("agent queue full, dropping newest event",
			"agent_id", agentID,
			"event_id", ev.ID,
			"event_name", ev.Name,
		)
		if r.onDrop != nil {
			r.onDrop(agentID)
		}
	}
	return nil
}

// Poll drains up to max events from an agent's queue, blocking up to timeout
// for the first one. Polling marks the agent as seen.
func (r *Registry) Poll(ctx context.Context, agentID string, max int, timeout time.Duration) ([]*event.Event, error) {
	conn, ok := r.Get(agentID)
	if !ok {
		return nil, ErrAgentNotFound
	}
	conn.touch()
	return conn.queue.Poll(ctx, max, timeout)
}

// Touch updates an agent's last-seen time.
func (r *Registry) Touch(agentID string) {
	if conn, ok := r.Get(agentID); ok {
		conn.touch()
	}
}

// QueueDepth returns the current queue length for an agent.
func (r *Registry) QueueDepth(agentID string) int {
	conn, ok := r.Get(agentID)
	if !ok {
		return 0
	}
	return conn.queue.Len()
}

// DroppedCount returns how many events an agent's queue has dropped.
func (r *Registry) DroppedCount(agentID string) int64 {
	conn, ok := r.Get(agentID)
	if !ok {
		return 0
	}
	return conn.queue.Dropped()
}

// List returns a snapshot of all connected agents, sorted by ID.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.agents))
	for _, conn := range r.agents {
		out = append(out, Info{
			ID:       conn.ID,
			Metadata: conn.Metadata,
			LastSeen: conn.LastSeen(),
			Queued:   conn.queue.Len(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of connected agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
