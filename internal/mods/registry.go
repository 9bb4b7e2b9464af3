// ABOUTME: Mod registry: binds declared event names to handlers, dispatches in order.
// ABOUTME: Handler panics are recovered and converted to failed responses.

package mods

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/openagents/openagents/internal/event"
	"github.com/openagents/openagents/internal/subscription"
)

var (
	// ErrModAlreadyRegistered indicates a mod with the same name is registered.
	ErrModAlreadyRegistered = errors.New("mod already registered")

	// ErrModNotFound indicates the named mod is not registered.
	ErrModNotFound = errors.New("mod not found")

	// ErrNoHandlers indicates a mod declared an empty handler table.
	ErrNoHandlers = errors.New("mod declares no handlers")
)

// binding is one (mod, handler) pair inserted at registration time. order is
// a global registration sequence used to keep dispatch deterministic.
type binding struct {
	modName string
	handler Handler
	order   int
}

// Registry maps event names to ordered mod handler lists and dispatches
// events to them.
type Registry struct {
	mu      sync.RWMutex
	mods    map[string]Mod
	exact   map[string][]binding // event name -> handlers, registration order
	prefix  map[string][]binding // dotted prefix -> handlers
	nextOrd int
	gw      EventGateway
	logger  *slog.Logger
}

// NewRegistry creates an empty mod registry. The gateway reference is handed
// to each mod at registration via BindNetwork.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		mods:   make(map[string]Mod),
		exact:  make(map[string][]binding),
		prefix: make(map[string][]binding),
		logger: logger.With("component", "mod-registry"),
	}
}

// BindGateway sets the gateway handed to mods registered from now on.
func (r *Registry) BindGateway(gw EventGateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gw = gw
}

// RegisterMod validates a mod's handler table, initializes the mod, binds the
// gateway, and inserts its handlers. Later registrations for the same event
// name are appended in registration order.
func (r *Registry) RegisterMod(ctx context.Context, m Mod) error {
	name := m.Name()
	if err := event.ValidateName(name); err != nil {
		return fmt.Errorf("mod name %q: %w", name, err)
	}

	table := m.Handlers()
	if len(table) == 0 {
		return fmt.Errorf("%w: %s", ErrNoHandlers, name)
	}
	for pattern := range table {
		if err := subscription.ValidatePattern(pattern); err != nil {
			return fmt.Errorf("mod %s: %w", name, err)
		}
		if pattern == "*" {
			return fmt.Errorf("mod %s: %w: bare wildcard binding", name, subscription.ErrBadPattern)
		}
	}

	r.mu.Lock()
	if _, exists := r.mods[name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrModAlreadyRegistered, name)
	}
	gw := r.gw
	r.mu.Unlock()

	if err := m.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing mod %s: %w", name, err)
	}
	if gw != nil {
		m.BindNetwork(gw)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.mods[name] = m

	// Insert patterns in sorted order so one mod's bindings get contiguous,
	// reproducible sequence numbers.
	patterns := make([]string, 0, len(table))
	for p := range table {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	for _, p := range patterns {
		b := binding{modName: name, handler: table[p], order: r.nextOrd}
		r.nextOrd++
		if pre, ok := strings.CutSuffix(p, ".*"); ok {
			r.prefix[pre] = append(r.prefix[pre], b)
		} else {
			r.exact[p] = append(r.exact[p], b)
		}
	}

	r.logger.Info("mod registered",
		"mod", name,
		"bindings", len(table),
		"total_mods", len(r.mods),
	)
	return nil
}

// UnregisterMod shuts a mod down and removes all its bindings.
func (r *Registry) UnregisterMod(ctx context.Context, name string) error {
	r.mu.Lock()
	m, ok := r.mods[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrModNotFound, name)
	}
	delete(r.mods, name)
	for key, bindings := range r.exact {
		r.exact[key] = dropMod(bindings, name)
		if len(r.exact[key]) == 0 {
			delete(r.exact, key)
		}
	}
	for key, bindings := range r.prefix {
		r.prefix[key] = dropMod(bindings, name)
		if len(r.prefix[key]) == 0 {
			delete(r.prefix, key)
		}
	}
	r.mu.Unlock()

	if err := m.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down mod %s: %w", name, err)
	}
	return nil
}

func dropMod(bindings []binding, name string) []binding {
	out := bindings[:0]
	for _, b := range bindings {
		if b.modName != name {
			out = append(out, b)
		}
	}
	return out
}

// Has reports whether a mod with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.mods[name]
	return ok
}

// List returns the sorted names of all registered mods.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.mods))
	for name := range r.mods {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ManifestFor returns the manifest of one registered mod.
func (r *Registry) ManifestFor(name string) (Manifest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.mods[name]
	if !ok {
		return Manifest{}, fmt.Errorf("%w: %s", ErrModNotFound, name)
	}
	events := make([]string, 0, len(m.Handlers()))
	for p := range m.Handlers() {
		events = append(events, p)
	}
	sort.Strings(events)
	_, observer := m.(AgentObserver)
	return Manifest{Name: name, Events: events, Observer: observer}, nil
}

// handlersFor collects the bindings for an event name: exact bindings first,
// then prefix bindings, registration order within each group.
func (r *Registry) handlersFor(name string) []binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []binding
	out = append(out, r.exact[name]...)

	var prefixed []binding
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			prefixed = append(prefixed, r.prefix[name[:i]]...)
		}
	}
	sort.SliceStable(prefixed, func(i, j int) bool { return prefixed[i].order < prefixed[j].order })
	return append(out, prefixed...)
}

// Dispatch invokes every handler bound to the event's name, serialized in
// binding order, and returns their responses. A handler error or panic is
// logged and converted to a failed response; remaining handlers still run.
func (r *Registry) Dispatch(ctx context.Context, ev *event.Event) []*event.Response {
	bindings := r.handlersFor(ev.Name)
	if len(bindings) == 0 {
		return nil
	}

	responses := make([]*event.Response, 0, len(bindings))
	for _, b := range bindings {
		resp := r.invoke(ctx, b, ev)
		if resp != nil {
			responses = append(responses, resp)
		}
	}
	return responses
}

// invoke runs one handler with panic recovery.
func (r *Registry) invoke(ctx context.Context, b binding, ev *event.Event) (resp *event.Response) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("mod handler panicked",
				"mod", b.modName,
				"event_name", ev.Name,
				"event_id", ev.ID,
				"panic", rec,
			)
			resp = event.Fail(fmt.Sprintf("handler panic in %s: %v", b.modName, rec))
		}
	}()

	out, err := b.handler(ctx, ev)
	if err != nil {
		r.logger.Error("mod handler failed",
			"mod", b.modName,
			"event_name", ev.Name,
			"event_id", ev.ID,
			"error", err,
		)
		return event.Fail(err.Error())
	}
	return out
}

// NotifyAgentRegistered informs observer mods that an agent joined.
func (r *Registry) NotifyAgentRegistered(agentID string) {
	for _, obs := range r.observers() {
		obs.AgentRegistered(agentID)
	}
}

// NotifyAgentUnregistered informs observer mods that an agent left.
func (r *Registry) NotifyAgentUnregistered(agentID string) {
	for _, obs := range r.observers() {
		obs.AgentUnregistered(agentID)
	}
}

func (r *Registry) observers() []AgentObserver {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.mods))
	for name := range r.mods {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []AgentObserver
	for _, name := range names {
		if obs, ok := r.mods[name].(AgentObserver); ok {
			out = append(out, obs)
		}
	}
	return out
}

// Shutdown stops every registered mod.
func (r *Registry) Shutdown(ctx context.Context) {
	for _, name := range r.List() {
		if err := r.UnregisterMod(ctx, name); err != nil {
			r.logger.Warn("mod shutdown failed", "mod", name, "error", err)
		}
	}
}
