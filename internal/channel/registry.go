// ABOUTME: Channel registry: named agent sets, sole source of truth for membership.
// ABOUTME: Maintains channel->members and agent->channels views under one lock.

package channel

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// ErrChannelNotFound indicates the named channel does not exist.
var ErrChannelNotFound = errors.New("channel not found")

// Registry tracks channel membership. Both directions of the membership
// relation are kept in step: an agent is in Members(c) exactly when c is in
// AgentChannels(agent).
type Registry struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // channel -> agent ids
	agents  map[string]map[string]struct{} // agent id -> channels
	logger  *slog.Logger
}

// NewRegistry creates an empty channel registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		members: make(map[string]map[string]struct{}),
		agents:  make(map[string]map[string]struct{}),
		logger:  logger.With("component", "channel-registry"),
	}
}

// Create ensures a channel exists. Creating an existing channel is a no-op.
func (r *Registry) Create(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createLocked(name)
}

func (r *Registry) createLocked(name string) {
	if _, ok := r.members[name]; !ok {
		r.members[name] = make(map[string]struct{})
		r.logger.Debug("channel created", "channel", name)
	}
}

// Remove deletes a channel and detaches all its members. Returns false if the
// channel does not exist.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.members[name]
	if !ok {
		return false
	}
	for agentID := range members {
		delete(r.agents[agentID], name)
		if len(r.agents[agentID]) == 0 {
			delete(r.agents, agentID)
		}
	}
	delete(r.members, name)
	r.logger.Info("channel removed", "channel", name, "member_count", len(members))
	return true
}

// AddMember adds an agent to a channel, creating the channel on demand.
// Adding an existing member is a no-op.
func (r *Registry) AddMember(name, agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.createLocked(name)
	r.members[name][agentID] = struct{}{}
	if _, ok := r.agents[agentID]; !ok {
		r.agents[agentID] = make(map[string]struct{})
	}
	r.agents[agentID][name] = struct{}{}
}

// RemoveMember removes an agent from a channel. A channel whose last member
// leaves is dropped. Returns false if either the channel is unknown or the
// agent was not a member.
func (r *Registry) RemoveMember(name, agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.members[name]
	if !ok {
		return false
	}
	if _, ok := members[agentID]; !ok {
		return false
	}
	delete(members, agentID)
	delete(r.agents[agentID], name)
	if len(r.agents[agentID]) == 0 {
		delete(r.agents, agentID)
	}
	r.dropIfEmptyLocked(name)
	return true
}

func (r *Registry) dropIfEmptyLocked(name string) {
	if len(r.members[name]) == 0 {
		delete(r.members, name)
		r.logger.Debug("channel emptied and removed", "channel", name)
	}
}

// RemoveAgent detaches an agent from every channel it belongs to and returns
// the channels it was removed from. Used by the unregister cascade.
func (r *Registry) RemoveAgent(agentID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	channels := make([]string, 0, len(r.agents[agentID]))
	for name := range r.agents[agentID] {
		delete(r.members[name], agentID)
		r.dropIfEmptyLocked(name)
		channels = append(channels, name)
	}
	delete(r.agents, agentID)
	sort.Strings(channels)
	return channels
}

// IsMember reports whether an agent belongs to a channel.
func (r *Registry) IsMember(name, agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[name][agentID]
	return ok
}

// Exists reports whether a channel exists.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[name]
	return ok
}

// Members returns the sorted member list of a channel.
func (r *Registry) Members(name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.members[name]
	if !ok {
		return nil, ErrChannelNotFound
	}
	out := make([]string, 0, len(members))
	for agentID := range members {
		out = append(out, agentID)
	}
	sort.Strings(out)
	return out, nil
}

// AgentChannels returns the sorted channels an agent belongs to.
func (r *Registry) AgentChannels(agentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.agents[agentID]))
	for name := range r.agents[agentID] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// List returns the sorted names of all channels.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.members))
	for name := range r.members {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
