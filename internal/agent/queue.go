// ABOUTME: Bounded FIFO event queue for one connected agent.
// ABOUTME: Enqueue never blocks (drop-newest on overflow); Poll blocks up to a deadline.

package agent

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/openagents/openagents/internal/event"
)

// Queue is the per-agent delivery queue. Producers never block: when the queue
// is full the incoming (newest) event is dropped and counted.
type Queue struct {
	ch      chan *event.Event
	dropped atomic.Int64
}

func newQueue(capacity int) *Queue {
	return &Queue{ch: make(chan *event.Event, capacity)}
}

// Enqueue appends an event. Returns false when the queue was full and the
// event was dropped.
func (q *Queue) Enqueue(ev *event.Event) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Poll returns up to max queued events. It blocks until at least one event is
// available, the timeout elapses, or ctx is cancelled. An elapsed timeout
// returns an empty slice and no error. A timeout of zero drains whatever is
// queued without waiting.
func (q *Queue) Poll(ctx context.Context, max int, timeout time.Duration) ([]*event.Event, error) {
	if max <= 0 {
		max = 1
	}

	var first *event.Event
	select {
	case first = <-q.ch:
	default:
		if timeout <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case first = <-q.ch:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// Cap the allocation at what is actually queued; max is caller-controlled.
	out := make([]*event.Event, 0, min(max, q.Len()+1))
	out = append(out, first)
	for len(out) < max {
		select {
		case ev := <-q.ch:
			out = append(out, ev)
		default:
			return out, nil
		}
	}
	return out, nil
}

// Len returns the number of events currently queued.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped returns how many events this queue has dropped on overflow.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}
