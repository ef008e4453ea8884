// Package queue provides the unbounded FIFO used for bus subscriptions and
// per-session outbound frames. Enqueue never blocks; consumers block until
// an item arrives or the queue is closed.
package queue

import "sync"

// Queue is an unbounded FIFO. The zero value is not usable; call New.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
}

// New returns an empty open queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item. It reports false if the queue has been closed, in
// which case the item is dropped.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, v)
	q.cond.Signal()
	return true
}

// Pop blocks until an item is available or the queue is closed. It reports
// false once the queue is closed and drained of nothing further; pending
// items are discarded on close.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	var zero T
	if q.closed {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// Close wakes all blocked consumers and discards pending items, returning
// how many were discarded. Idempotent; subsequent calls return 0.
func (q *Queue[T]) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	q.closed = true
	dropped := len(q.items)
	q.items = nil
	q.cond.Broadcast()
	return dropped
}

// Len returns the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
