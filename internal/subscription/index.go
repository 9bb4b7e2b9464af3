// ABOUTME: Subscription index mapping event-name patterns and filters to agents.
// ABOUTME: Pre-buckets exact, prefix, and wildcard patterns for sublinear Match.

package subscription

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/openagents/openagents/internal/event"
)

var (
	// ErrNoPatterns indicates a subscription declared no event patterns.
	ErrNoPatterns = errors.New("subscription requires at least one pattern")

	// ErrBadPattern indicates a pattern that is neither exact, "*", nor "prefix.*".
	ErrBadPattern = errors.New("invalid subscription pattern")
)

// Subscription is an agent's standing interest in a subset of events.
type Subscription struct {
	ID       string
	AgentID  string
	Patterns []string

	// Optional filters, all conjunctive with the pattern match.
	ModFilter     string
	ChannelFilter string
	AgentFilter   []string

	Active bool
}

func (s *Subscription) allowsSource(sourceID string) bool {
	if len(s.AgentFilter) == 0 {
		return true
	}
	for _, id := range s.AgentFilter {
		if id == sourceID {
			return true
		}
	}
	return false
}

// matchesFilters applies the mod, channel, and source filters to an event.
func (s *Subscription) matchesFilters(ev *event.Event) bool {
	if s.ModFilter != "" && ev.RelevantMod != s.ModFilter {
		return false
	}
	if s.ChannelFilter != "" && ev.TargetChannel != s.ChannelFilter {
		return false
	}
	return s.allowsSource(ev.SourceID)
}

// ValidatePattern checks a single event pattern: an exact dotted name, the
// match-all "*", or a dotted prefix followed by ".*".
func ValidatePattern(pattern string) error {
	if pattern == "*" {
		return nil
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		if prefix == "" || strings.Contains(prefix, "*") {
			return fmt.Errorf("%w: %q", ErrBadPattern, pattern)
		}
		return nil
	}
	if pattern == "" || strings.Contains(pattern, "*") {
		return fmt.Errorf("%w: %q", ErrBadPattern, pattern)
	}
	return nil
}

// Matches reports whether a single pattern matches an event name.
func Matches(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(name, prefix+".")
	}
	return pattern == name
}

// Index is the subscription index. Add, Remove, and RemoveForAgent mutate it;
// Match is deterministic and side-effect-free.
type Index struct {
	mu sync.RWMutex

	subs    map[string]*Subscription            // id -> subscription
	byAgent map[string]map[string]struct{}      // agent id -> sub ids
	exact   map[string]map[string]*Subscription // event name -> id -> sub
	prefix  map[string]map[string]*Subscription // dotted prefix -> id -> sub
	all     map[string]*Subscription            // subs with a "*" pattern
}

// NewIndex creates an empty subscription index.
func NewIndex() *Index {
	return &Index{
		subs:    make(map[string]*Subscription),
		byAgent: make(map[string]map[string]struct{}),
		exact:   make(map[string]map[string]*Subscription),
		prefix:  make(map[string]map[string]*Subscription),
		all:     make(map[string]*Subscription),
	}
}

// Add validates and inserts a subscription, assigning an ID when absent.
// The subscription becomes active immediately.
func (x *Index) Add(sub *Subscription) (string, error) {
	if sub == nil || len(sub.Patterns) == 0 {
		return "", ErrNoPatterns
	}
	for _, p := range sub.Patterns {
		if err := ValidatePattern(p); err != nil {
			return "", err
		}
	}
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	sub.Active = true

	x.mu.Lock()
	defer x.mu.Unlock()

	x.subs[sub.ID] = sub
	if _, ok := x.byAgent[sub.AgentID]; !ok {
		x.byAgent[sub.AgentID] = make(map[string]struct{})
	}
	x.byAgent[sub.AgentID][sub.ID] = struct{}{}

	for _, p := range sub.Patterns {
		switch {
		case p == "*":
			x.all[sub.ID] = sub
		case strings.HasSuffix(p, ".*"):
			pre := strings.TrimSuffix(p, ".*")
			if _, ok := x.prefix[pre]; !ok {
				x.prefix[pre] = make(map[string]*Subscription)
			}
			x.prefix[pre][sub.ID] = sub
		default:
			if _, ok := x.exact[p]; !ok {
				x.exact[p] = make(map[string]*Subscription)
			}
			x.exact[p][sub.ID] = sub
		}
	}
	return sub.ID, nil
}

// Remove deletes a subscription by ID. Returns false if the ID is unknown;
// nothing else is altered in that case.
func (x *Index) Remove(id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.removeLocked(id)
}

func (x *Index) removeLocked(id string) bool {
	sub, ok := x.subs[id]
	if !ok {
		return false
	}
	delete(x.subs, id)
	sub.Active = false

	if ids, ok := x.byAgent[sub.AgentID]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(x.byAgent, sub.AgentID)
		}
	}
	for _, p := range sub.Patterns {
		switch {
		case p == "*":
			delete(x.all, id)
		case strings.HasSuffix(p, ".*"):
			pre := strings.TrimSuffix(p, ".*")
			delete(x.prefix[pre], id)
			if len(x.prefix[pre]) == 0 {
				delete(x.prefix, pre)
			}
		default:
			delete(x.exact[p], id)
			if len(x.exact[p]) == 0 {
				delete(x.exact, p)
			}
		}
	}
	return true
}

// RemoveForAgent drops every subscription owned by an agent and returns how
// many were removed. Used by the unregister cascade.
func (x *Index) RemoveForAgent(agentID string) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	ids := make([]string, 0, len(x.byAgent[agentID]))
	for id := range x.byAgent[agentID] {
		ids = append(ids, id)
	}
	for _, id := range ids {
		x.removeLocked(id)
	}
	return len(ids)
}

// Get returns a subscription by ID.
func (x *Index) Get(id string) (*Subscription, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	sub, ok := x.subs[id]
	return sub, ok
}

// CountForAgent returns the number of active subscriptions an agent owns.
func (x *Index) CountForAgent(agentID string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byAgent[agentID])
}

// Match returns the active subscriptions the event should be delivered to,
// sorted by subscription ID for determinism. isMember answers whether a given
// agent belongs to a given channel; it feeds the per-subscriber visibility
// check. A subscriber matched by several of its own patterns appears once.
func (x *Index) Match(ev *event.Event, isMember func(agentID, channel string) bool) []*Subscription {
	x.mu.RLock()
	defer x.mu.RUnlock()

	candidates := make(map[string]*Subscription)
	for id, sub := range x.exact[ev.Name] {
		candidates[id] = sub
	}
	// A pattern "a.b.*" matches "a.b.c" and "a.b.c.d": walk every dotted
	// prefix of the event name.
	for i := 0; i < len(ev.Name); i++ {
		if ev.Name[i] != '.' {
			continue
		}
		for id, sub := range x.prefix[ev.Name[:i]] {
			candidates[id] = sub
		}
	}
	for id, sub := range x.all {
		candidates[id] = sub
	}

	matched := make([]*Subscription, 0, len(candidates))
	for _, sub := range candidates {
		if !sub.Active {
			continue
		}
		member := func(channel string) bool {
			return isMember != nil && isMember(sub.AgentID, channel)
		}
		if !ev.VisibleTo(sub.AgentID, member) {
			continue
		}
		if !sub.matchesFilters(ev) {
			continue
		}
		matched = append(matched, sub)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched
}
