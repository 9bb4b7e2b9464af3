// ABOUTME: Bounded ring of recently processed events for diagnostic retrieval.
// ABOUTME: Iteration yields insertion order; writes are O(1) under one lock.

package gateway

import (
	"sync"

	"github.com/openagents/openagents/internal/event"
)

// DefaultHistorySize is the history ring bound when none is configured.
const DefaultHistorySize = 10000

type historyRing struct {
	mu    sync.Mutex
	buf   []*event.Event
	next  int
	count int
}

func newHistoryRing(size int) *historyRing {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &historyRing{buf: make([]*event.Event, size)}
}

func (h *historyRing) append(ev *event.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.next] = ev
	h.next = (h.next + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
}

// recent returns up to limit of the newest events in insertion order.
// limit <= 0 means everything retained.
func (h *historyRing) recent(limit int) []*event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*event.Event, 0, n)
	start := h.next - n
	if start < 0 {
		start += len(h.buf)
	}
	for i := 0; i < n; i++ {
		out = append(out, h.buf[(start+i)%len(h.buf)])
	}
	return out
}

func (h *historyRing) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}
