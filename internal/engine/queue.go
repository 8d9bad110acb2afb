package engine

import (
	"sync"

	"github.com/roach88/stampview/internal/txn"
)

// refreshQueue is an unbounded FIFO of refresh events.
//
// Transaction resolution enqueues from whichever goroutine committed or
// canceled; the Run loop is the single consumer. The signal channel lets
// Run wait on the queue and a context at the same time.
type refreshQueue struct {
	mu     sync.Mutex
	events []txn.RefreshEvent
	closed bool
	signal chan struct{} // buffered, size 1
}

func newRefreshQueue() *refreshQueue {
	return &refreshQueue{
		events: make([]txn.RefreshEvent, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends ev. It returns false once the queue is closed.
func (q *refreshQueue) Enqueue(ev txn.RefreshEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, ev)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *refreshQueue) TryDequeue() (txn.RefreshEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return txn.RefreshEvent{}, false
	}
	ev := q.events[0]
	// Release the slot so the backing array does not pin the component set.
	q.events[0] = txn.RefreshEvent{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return ev, true
}

// Wait signals when events may be available, and is closed on Close.
func (q *refreshQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued events.
func (q *refreshQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *refreshQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting events and wakes the consumer.
func (q *refreshQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
