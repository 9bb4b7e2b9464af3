// ABOUTME: In-flight response table correlating awaited responses by event ID.
// ABOUTME: Slots are created before mod dispatch so reentrant responses resolve them.

package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/openagents/openagents/internal/event"
)

// ErrResponseTimeout indicates an awaited response did not arrive in time.
var ErrResponseTimeout = errors.New("response timeout")

// ErrNotAwaited indicates no in-flight slot exists for the event ID.
var ErrNotAwaited = errors.New("event is not awaiting a response")

// slotMaxAge bounds how long an unclaimed slot may linger when its creator
// never awaits it. Stale slots are swept on the next create.
const slotMaxAge = 5 * time.Minute

type slot struct {
	ch       chan *event.Response
	created  time.Time
	resolved bool
}

type inflightTable struct {
	mu      sync.Mutex
	pending map[string]*slot
	onSize  func(n int) // gauge hook, may be nil
}

func newInflightTable(onSize func(int)) *inflightTable {
	return &inflightTable{
		pending: make(map[string]*slot),
		onSize:  onSize,
	}
}

// create inserts a slot for the event ID. Creating twice is a no-op.
func (t *inflightTable) create(eventID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweepLocked()
	if _, exists := t.pending[eventID]; exists {
		return
	}
	t.pending[eventID] = &slot{
		ch:      make(chan *event.Response, 1),
		created: time.Now(),
	}
	t.notifyLocked()
}

// resolve delivers a response to a waiting slot. Only the first resolution
// wins; later ones (and unknown IDs) return false.
func (t *inflightTable) resolve(eventID string, resp *event.Response) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.pending[eventID]
	if !ok || s.resolved {
		return false
	}
	s.resolved = true
	s.ch <- resp
	return true
}

// has reports whether an unresolved slot exists for the event ID.
func (t *inflightTable) has(eventID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.pending[eventID]
	return ok && !s.resolved
}

// await blocks until the slot resolves, the timeout elapses, or ctx is
// cancelled. The slot is removed in every case.
func (t *inflightTable) await(ctx context.Context, eventID string, timeout time.Duration) (*event.Response, error) {
	t.mu.Lock()
	s, ok := t.pending[eventID]
	t.mu.Unlock()
	if !ok {
		return nil, ErrNotAwaited
	}

	defer t.remove(eventID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-s.ch:
		return resp, nil
	case <-timer.C:
		return nil, ErrResponseTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// remove deletes a slot without resolving it.
func (t *inflightTable) remove(eventID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, eventID)
	t.notifyLocked()
}

func (t *inflightTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *inflightTable) notifyLocked() {
	if t.onSize != nil {
		t.onSize(len(t.pending))
	}
}

// sweepLocked drops slots that were never awaited.
func (t *inflightTable) sweepLocked() {
	now := time.Now()
	removed := false
	for id, s := range t.pending {
		if now.Sub(s.created) > slotMaxAge {
			delete(t.pending, id)
			removed = true
		}
	}
	if removed {
		t.notifyLocked()
	}
}
