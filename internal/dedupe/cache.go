// ABOUTME: TTL- and size-bounded seen-set of event IDs for replay protection.
// ABOUTME: Expired entries are swept opportunistically on write; no background goroutine.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache tracks recently seen event IDs so a transport replaying an event does
// not cause a second dispatch. Insertion order is kept in a linked list for
// O(1) eviction of the oldest entry when the size bound is hit.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // event IDs, oldest at front
	ttl     time.Duration
	maxSize int
}

// New creates a cache holding at most maxSize IDs, each for at most ttl.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// SeenOrRemember atomically checks whether an event ID was already seen within
// the TTL and records it if not. Returns true for a duplicate.
func (c *Cache) SeenOrRemember(eventID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked()

	if e, ok := c.seen[eventID]; ok && time.Since(e.seenAt) < c.ttl {
		return true
	}
	c.rememberLocked(eventID)
	return false
}

// Seen reports whether an event ID is currently in the set.
func (c *Cache) Seen(eventID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[eventID]
	return ok && time.Since(e.seenAt) < c.ttl
}

// Remember records an event ID unconditionally.
func (c *Cache) Remember(eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	c.rememberLocked(eventID)
}

// Len returns the number of tracked IDs, including any not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) rememberLocked(eventID string) {
	now := time.Now()
	if e, ok := c.seen[eventID]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return
	}
	if len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}
	elem := c.order.PushBack(eventID)
	c.seen[eventID] = &entry{seenAt: now, element: elem}
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, id)
}

// sweepLocked drops expired entries from the front of the insertion order.
// Entries are refreshed on re-insert, so expiry order equals insertion order.
func (c *Cache) sweepLocked() {
	for {
		front := c.order.Front()
		if front == nil {
			return
		}
		id, _ := front.Value.(string)
		e := c.seen[id]
		if e == nil || time.Since(e.seenAt) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.seen, id)
	}
}
