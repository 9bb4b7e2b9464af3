// ABOUTME: Tests for the mod registry: binding order, panic recovery, lifecycle.
// ABOUTME: Uses a scriptable fake mod defined locally.

package mods

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openagents/openagents/internal/event"
)

// fakeMod is a scriptable mod for registry tests.
type fakeMod struct {
	name        string
	handlers    map[string]Handler
	initialized bool
	shutdown    bool
	gw          EventGateway

	registeredAgents   []string
	unregisteredAgents []string
	observe            bool
}

func (f *fakeMod) Name() string                  { return f.name }
func (f *fakeMod) Handlers() map[string]Handler  { return f.handlers }
func (f *fakeMod) Initialize(context.Context) error {
	f.initialized = true
	return nil
}
func (f *fakeMod) BindNetwork(gw EventGateway) { f.gw = gw }
func (f *fakeMod) Shutdown(context.Context) error {
	f.shutdown = true
	return nil
}

// observerMod adds the AgentObserver extension.
type observerMod struct{ fakeMod }

func (o *observerMod) AgentRegistered(agentID string) {
	o.registeredAgents = append(o.registeredAgents, agentID)
}
func (o *observerMod) AgentUnregistered(agentID string) {
	o.unregisteredAgents = append(o.unregisteredAgents, agentID)
}

func okHandler(tag string) Handler {
	return func(ctx context.Context, ev *event.Event) (*event.Response, error) {
		return event.OK("", map[string]any{tag: true}), nil
	}
}

func dispatchEvent(t *testing.T, name string) *event.Event {
	t.Helper()
	ev, err := event.New(event.Params{Name: name, SourceID: "src"})
	require.NoError(t, err)
	return ev
}

func TestRegisterMod_Validation(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()

	err := r.RegisterMod(ctx, &fakeMod{name: "badname", handlers: map[string]Handler{"a.b": okHandler("x")}})
	assert.ErrorIs(t, err, event.ErrValidation)

	err = r.RegisterMod(ctx, &fakeMod{name: "openagents.mods.empty"})
	assert.ErrorIs(t, err, ErrNoHandlers)

	err = r.RegisterMod(ctx, &fakeMod{name: "openagents.mods.wild", handlers: map[string]Handler{"*": okHandler("x")}})
	assert.Error(t, err, "bare wildcard bindings are rejected")

	m := &fakeMod{name: "openagents.mods.sample", handlers: map[string]Handler{"sample.thing.done": okHandler("x")}}
	require.NoError(t, r.RegisterMod(ctx, m))
	assert.True(t, m.initialized)
	assert.True(t, r.Has("openagents.mods.sample"))

	err = r.RegisterMod(ctx, &fakeMod{name: "openagents.mods.sample", handlers: map[string]Handler{"sample.thing.done": okHandler("y")}})
	assert.ErrorIs(t, err, ErrModAlreadyRegistered)
}

func TestDispatch_OrderAndAggregation(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()

	var calls []string
	record := func(tag string) Handler {
		return func(ctx context.Context, ev *event.Event) (*event.Response, error) {
			calls = append(calls, tag)
			return event.OK("", map[string]any{tag: true}), nil
		}
	}

	// Exact binding registered after a prefix binding still dispatches first.
	require.NoError(t, r.RegisterMod(ctx, &fakeMod{
		name:     "openagents.mods.prefix_watcher",
		handlers: map[string]Handler{"task.*": record("prefix")},
	}))
	require.NoError(t, r.RegisterMod(ctx, &fakeMod{
		name:     "openagents.mods.exact_watcher",
		handlers: map[string]Handler{"task.run.finished": record("exact")},
	}))

	responses := r.Dispatch(ctx, dispatchEvent(t, "task.run.finished"))
	require.Len(t, responses, 2)
	assert.Equal(t, []string{"exact", "prefix"}, calls)

	agg := event.Combine(responses)
	require.NotNil(t, agg)
	assert.True(t, agg.Success)
	assert.True(t, agg.Data["exact"].(bool))
	assert.True(t, agg.Data["prefix"].(bool))
}

func TestDispatch_SameNameRegistrationOrder(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()

	var calls []string
	for i := 0; i < 3; i++ {
		tag := fmt.Sprintf("mod-%d", i)
		require.NoError(t, r.RegisterMod(ctx, &fakeMod{
			name: fmt.Sprintf("openagents.mods.watcher_%d", i),
			handlers: map[string]Handler{
				"task.run.finished": func(tag string) Handler {
					return func(ctx context.Context, ev *event.Event) (*event.Response, error) {
						calls = append(calls, tag)
						return nil, nil
					}
				}(tag),
			},
		}))
	}

	r.Dispatch(ctx, dispatchEvent(t, "task.run.finished"))
	assert.Equal(t, []string{"mod-0", "mod-1", "mod-2"}, calls)
}

func TestDispatch_ErrorAndPanicRecovery(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()

	var afterRan bool
	require.NoError(t, r.RegisterMod(ctx, &fakeMod{
		name: "openagents.mods.flaky",
		handlers: map[string]Handler{
			"task.run.finished": func(ctx context.Context, ev *event.Event) (*event.Response, error) {
				return nil, errors.New("database offline")
			},
		},
	}))
	require.NoError(t, r.RegisterMod(ctx, &fakeMod{
		name: "openagents.mods.panicky",
		handlers: map[string]Handler{
			"task.*": func(ctx context.Context, ev *event.Event) (*event.Response, error) {
				panic("boom")
			},
		},
	}))
	require.NoError(t, r.RegisterMod(ctx, &fakeMod{
		name: "openagents.mods.steady",
		handlers: map[string]Handler{
			"task.*": func(ctx context.Context, ev *event.Event) (*event.Response, error) {
				afterRan = true
				return event.OK("fine", nil), nil
			},
		},
	}))

	responses := r.Dispatch(ctx, dispatchEvent(t, "task.run.finished"))
	require.Len(t, responses, 3)
	assert.False(t, responses[0].Success)
	assert.Contains(t, responses[0].Message, "database offline")
	assert.False(t, responses[1].Success)
	assert.Contains(t, responses[1].Message, "panic")
	assert.True(t, responses[2].Success)
	assert.True(t, afterRan, "a failing handler must not abort the rest")

	agg := event.Combine(responses)
	assert.False(t, agg.Success, "first failure becomes the aggregate")
	assert.Contains(t, agg.Message, "database offline")
}

func TestDispatch_NoBindings(t *testing.T) {
	r := NewRegistry(nil)
	assert.Nil(t, r.Dispatch(context.Background(), dispatchEvent(t, "task.run.finished")))
}

func TestUnregisterMod(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()

	m := &fakeMod{name: "openagents.mods.sample", handlers: map[string]Handler{"sample.thing.done": okHandler("x")}}
	require.NoError(t, r.RegisterMod(ctx, m))
	require.NoError(t, r.UnregisterMod(ctx, "openagents.mods.sample"))

	assert.True(t, m.shutdown)
	assert.False(t, r.Has("openagents.mods.sample"))
	assert.Nil(t, r.Dispatch(ctx, dispatchEvent(t, "sample.thing.done")))
	assert.ErrorIs(t, r.UnregisterMod(ctx, "openagents.mods.sample"), ErrModNotFound)
}

func TestAgentObserverNotifications(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()

	obs := &observerMod{fakeMod: fakeMod{
		name:     "openagents.mods.presence",
		handlers: map[string]Handler{"presence.agent.checked": okHandler("x")},
	}}
	plain := &fakeMod{name: "openagents.mods.plain", handlers: map[string]Handler{"plain.thing.done": okHandler("y")}}
	require.NoError(t, r.RegisterMod(ctx, obs))
	require.NoError(t, r.RegisterMod(ctx, plain))

	r.NotifyAgentRegistered("a")
	r.NotifyAgentUnregistered("a")

	assert.Equal(t, []string{"a"}, obs.registeredAgents)
	assert.Equal(t, []string{"a"}, obs.unregisteredAgents)
}

func TestManifest(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()

	obs := &observerMod{fakeMod: fakeMod{
		name: "openagents.mods.presence",
		handlers: map[string]Handler{
			"presence.agent.checked": okHandler("x"),
			"presence.*":             okHandler("y"),
		},
	}}
	require.NoError(t, r.RegisterMod(ctx, obs))

	manifest, err := r.ManifestFor("openagents.mods.presence")
	require.NoError(t, err)
	assert.Equal(t, "openagents.mods.presence", manifest.Name)
	assert.Equal(t, []string{"presence.*", "presence.agent.checked"}, manifest.Events)
	assert.True(t, manifest.Observer)

	_, err = r.ManifestFor("openagents.mods.ghost")
	assert.ErrorIs(t, err, ErrModNotFound)

	assert.Equal(t, []string{"openagents.mods.presence"}, r.List())
}
