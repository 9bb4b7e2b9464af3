// ABOUTME: Tests for event construction, validation, and visibility decisions.
// ABOUTME: Covers name grammar, auto-derived visibility, and per-observer checks.

package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	valid := []string{
		"agent.direct_message.sent",
		"channel.message.posted",
		"system.agent.register",
		"project.creation.requested",
		"a.b",
		"wiki.page_revision.saved",
	}
	for _, name := range valid {
		assert.NoError(t, ValidateName(name), "expected %q to be valid", name)
	}

	invalid := []string{
		"",
		"event",
		"message",
		"test",
		"temp",
		"default",
		"generic",
		"singleword",
		"Agent.Message.Sent",
		"agent..sent",
		".agent.sent",
		"agent.sent.",
		"agent.1sent",
		"agent message",
		"mods.project.unknown",
	}
	for _, name := range invalid {
		assert.Error(t, ValidateName(name), "expected %q to be invalid", name)
	}
}

func TestNew_AssignsIdentityAndTimestamp(t *testing.T) {
	first, err := New(Params{Name: "agent.status.updated", SourceID: "a"})
	require.NoError(t, err)
	second, err := New(Params{Name: "agent.status.updated", SourceID: "a"})
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Less(t, first.Timestamp, second.Timestamp, "timestamps must be strictly monotonic")
	assert.Equal(t, SourceAgent, first.SourceType)
}

func TestNew_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr error
	}{
		{"placeholder name", Params{Name: "event", SourceID: "a"}, ErrValidation},
		{"missing source", Params{Name: "agent.ping.sent"}, ErrMissingSource},
		{"bad source type", Params{Name: "agent.ping.sent", SourceID: "a", SourceType: "system"}, ErrInvalidSource},
		{"restricted without allowlist", Params{Name: "agent.secret.shared", SourceID: "a", Visibility: VisibilityRestricted}, ErrEmptyAllowlist},
		{"unknown visibility", Params{Name: "agent.ping.sent", SourceID: "a", Visibility: "secret"}, ErrInvalidVisibility},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_DerivesVisibility(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   Visibility
	}{
		{"plain broadcast", Params{Name: "agent.status.updated", SourceID: "a"}, VisibilityNetwork},
		{"direct from destination", Params{Name: "agent.direct_message.sent", SourceID: "a", DestinationID: "b"}, VisibilityDirect},
		{"channel from target", Params{Name: "channel.message.posted", SourceID: "a", TargetChannel: "#general"}, VisibilityChannel},
		{"mod only from relevant mod", Params{Name: "project.creation.requested", SourceID: "a", RelevantMod: "openagents.mods.project.default"}, VisibilityModOnly},
		{"mod with channel stays channel", Params{Name: "channel.message.posted", SourceID: "a", TargetChannel: "#general", RelevantMod: "openagents.mods.workspace.messaging"}, VisibilityChannel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := New(tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Visibility)
		})
	}
}

func TestNew_ExplicitVisibilityWins(t *testing.T) {
	// Explicit non-default visibility is never overridden by targeting fields.
	ev, err := New(Params{
		Name:          "project.status.changed",
		SourceID:      "mod:project",
		SourceType:    SourceMod,
		RelevantMod:   "openagents.mods.project.default",
		Visibility:    VisibilityPublic,
		DestinationID: "b",
	})
	require.NoError(t, err)
	assert.Equal(t, VisibilityPublic, ev.Visibility)
}

func TestNew_SortsAllowedAgents(t *testing.T) {
	ev, err := New(Params{
		Name:          "agent.secret.shared",
		SourceID:      "a",
		Visibility:    VisibilityRestricted,
		AllowedAgents: []string{"zed", "amy", "mia"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"amy", "mia", "zed"}, ev.AllowedAgents)
}

func TestVisibleTo(t *testing.T) {
	inGeneral := func(ch string) bool { return ch == "#general" }
	nowhere := func(string) bool { return false }

	direct, err := New(Params{Name: "agent.direct_message.sent", SourceID: "a", DestinationID: "b"})
	require.NoError(t, err)
	assert.True(t, direct.VisibleTo("b", nowhere))
	assert.True(t, direct.VisibleTo("a", nowhere), "source always sees its own event")
	assert.False(t, direct.VisibleTo("c", nowhere))

	channel, err := New(Params{Name: "channel.message.posted", SourceID: "a", TargetChannel: "#general"})
	require.NoError(t, err)
	assert.True(t, channel.VisibleTo("b", inGeneral))
	assert.True(t, channel.VisibleTo("a", nowhere), "source sees it even off-channel")
	assert.False(t, channel.VisibleTo("b", nowhere))

	restricted, err := New(Params{
		Name: "agent.secret.shared", SourceID: "a",
		Visibility: VisibilityRestricted, AllowedAgents: []string{"b"},
	})
	require.NoError(t, err)
	assert.True(t, restricted.VisibleTo("b", nowhere))
	assert.True(t, restricted.VisibleTo("a", nowhere))
	assert.False(t, restricted.VisibleTo("c", nowhere))

	modOnly, err := New(Params{Name: "project.creation.requested", SourceID: "a", RelevantMod: "openagents.mods.project.default"})
	require.NoError(t, err)
	assert.False(t, modOnly.VisibleTo("a", nowhere), "mod-only events are invisible even to the source")
	assert.False(t, modOnly.VisibleTo("b", nowhere))

	network, err := New(Params{Name: "agent.status.updated", SourceID: "a"})
	require.NoError(t, err)
	assert.True(t, network.VisibleTo("anyone", nil))
}

func TestPayloadAccessors(t *testing.T) {
	ev, err := New(Params{
		Name:     "channel.message.posted",
		SourceID: "a",
		Payload: map[string]any{
			"text":  "hello",
			"count": float64(3),
			"flag":  true,
			"inner": map[string]any{"k": "v"},
		},
	})
	require.NoError(t, err)

	text, ok := ev.PayloadString("text")
	assert.True(t, ok)
	assert.Equal(t, "hello", text)

	count, ok := ev.PayloadInt("count")
	assert.True(t, ok)
	assert.Equal(t, 3, count)

	flag, ok := ev.PayloadBool("flag")
	assert.True(t, ok)
	assert.True(t, flag)

	inner, ok := ev.PayloadMap("inner")
	assert.True(t, ok)
	assert.Equal(t, "v", inner["k"])

	_, ok = ev.PayloadString("missing")
	assert.False(t, ok)
}
