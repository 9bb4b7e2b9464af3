// ABOUTME: Tests for the channel registry and its dual-view membership invariant.
// ABOUTME: Covers on-demand creation, removal cascades, and agent detachment.

package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddAndQueryMembers(t *testing.T) {
	r := NewRegistry(nil)

	r.AddMember("#general", "b")
	r.AddMember("#general", "a")
	r.AddMember("#general", "a") // duplicate add is a no-op

	members, err := r.Members("#general")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, members)

	assert.True(t, r.IsMember("#general", "a"))
	assert.False(t, r.IsMember("#general", "c"))
	assert.False(t, r.IsMember("#missing", "a"))
}

func TestRegistry_DualViewInvariant(t *testing.T) {
	r := NewRegistry(nil)
	r.AddMember("#general", "a")
	r.AddMember("#ops", "a")
	r.AddMember("#general", "b")

	// A is in Members(c) iff c is in AgentChannels(A), for every pair.
	for _, ch := range r.List() {
		members, err := r.Members(ch)
		require.NoError(t, err)
		for _, agentID := range members {
			assert.Contains(t, r.AgentChannels(agentID), ch)
		}
	}
	for _, agentID := range []string{"a", "b"} {
		for _, ch := range r.AgentChannels(agentID) {
			assert.True(t, r.IsMember(ch, agentID))
		}
	}

	assert.Equal(t, []string{"#general", "#ops"}, r.AgentChannels("a"))
	assert.Equal(t, []string{"#general"}, r.AgentChannels("b"))
}

func TestRegistry_RemoveMember(t *testing.T) {
	r := NewRegistry(nil)
	r.AddMember("#general", "a")
	r.AddMember("#general", "b")

	assert.True(t, r.RemoveMember("#general", "a"))
	assert.False(t, r.RemoveMember("#general", "a"))
	assert.False(t, r.RemoveMember("#missing", "a"))

	assert.Empty(t, r.AgentChannels("a"))
	members, err := r.Members("#general")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)
}

func TestRegistry_LastMemberLeavingRemovesChannel(t *testing.T) {
	r := NewRegistry(nil)
	r.AddMember("#general", "a")

	assert.True(t, r.RemoveMember("#general", "a"))
	assert.False(t, r.Exists("#general"))
	assert.Empty(t, r.List())
	_, err := r.Members("#general")
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestRegistry_RemoveChannel(t *testing.T) {
	r := NewRegistry(nil)
	r.AddMember("#general", "a")
	r.AddMember("#general", "b")

	assert.True(t, r.Remove("#general"))
	assert.False(t, r.Remove("#general"))
	assert.False(t, r.Exists("#general"))
	assert.Empty(t, r.AgentChannels("a"))
	assert.Empty(t, r.AgentChannels("b"))

	_, err := r.Members("#general")
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestRegistry_RemoveAgent(t *testing.T) {
	r := NewRegistry(nil)
	r.AddMember("#general", "a")
	r.AddMember("#ops", "a")
	r.AddMember("#general", "b")

	removed := r.RemoveAgent("a")
	assert.Equal(t, []string{"#general", "#ops"}, removed)
	assert.Empty(t, r.AgentChannels("a"))
	assert.False(t, r.IsMember("#general", "a"))
	assert.True(t, r.IsMember("#general", "b"))

	// #ops lost its last member in the cascade; #general keeps b.
	assert.False(t, r.Exists("#ops"))
	assert.True(t, r.Exists("#general"))

	assert.Empty(t, r.RemoveAgent("a"))
}

func TestRegistry_CreateIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	r.Create("#general")
	r.Create("#general")
	assert.Equal(t, []string{"#general"}, r.List())

	members, err := r.Members("#general")
	require.NoError(t, err)
	assert.Empty(t, members)
}
