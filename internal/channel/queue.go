package channel

import (
	"context"
	"sync"

	"github.com/roach88/skirmish/internal/model"
)

// eventQueue is a thread-safe FIFO of accepted events for one subscriber.
//
// The queue is unbounded so the hub never blocks on a slow subscriber while
// holding its lock. The signal channel enables context-aware waiting.
type eventQueue struct {
	mu     sync.Mutex
	events []model.MoveEvent
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]model.MoveEvent, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(ev model.MoveEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, ev)

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
// Returns false if the queue is empty.
func (q *eventQueue) TryDequeue() (model.MoveEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return model.MoveEvent{}, false
	}

	ev := q.events[0]
	q.events[0] = model.MoveEvent{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return ev, true
}

// Next blocks until an event is available, the queue is closed, or ctx ends.
// Events enqueued before Close are still delivered.
func (q *eventQueue) Next(ctx context.Context) (model.MoveEvent, error) {
	for {
		if ev, ok := q.TryDequeue(); ok {
			return ev, nil
		}
		if q.isClosed() {
			return model.MoveEvent{}, ErrStreamClosed
		}

		select {
		case <-ctx.Done():
			return model.MoveEvent{}, ctx.Err()
		case <-q.signal:
		}
	}
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *eventQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more events will be enqueued and wakes waiters.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
