// Package queue provides the FIFO, non-empty notifier and idle gate that
// connect the stages of the write path.
package queue

import (
	"sync"
	"time"
)

// Queue is an unbounded mutex-protected FIFO. Every push signals a
// one-slot notifier so that a single consumer can sleep until items arrive.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	notify chan struct{}
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{notify: make(chan struct{}, 1)}
}

// Push appends items in order and signals the consumer.
func (q *Queue[T]) Push(items ...T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, items...)
	q.mu.Unlock()
	q.Notify()
}

// Pop removes and returns up to max items from the front.
func (q *Queue[T]) Pop(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked(max)
}

// PopFunc pops up to max items and runs fn on them while the queue lock is
// still held, so that observers never see the items in neither place.
func (q *Queue[T]) PopFunc(max int, fn func([]T)) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.popLocked(max)
	fn(items)
	return len(items)
}

func (q *Queue[T]) popLocked(max int) []T {
	n := len(q.items) - q.head
	if max >= 0 && n > max {
		n = max
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	copy(out, q.items[q.head:q.head+n])
	var zero T
	for i := q.head; i < q.head+n; i++ {
		q.items[i] = zero
	}
	q.head += n
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 1024 && q.head*2 > len(q.items) {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return out
}

// Drain removes and returns every queued item.
func (q *Queue[T]) Drain() []T {
	return q.Pop(-1)
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Locked runs fn with the queue lock held, passing the current length.
func (q *Queue[T]) Locked(fn func(n int)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	fn(len(q.items) - q.head)
}

// Notify wakes the consumer without adding items.
func (q *Queue[T]) Notify() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Wait blocks until the queue is signalled or timeout elapses. A timeout
// of zero or less waits without a bound. It reports whether a signal was
// received.
func (q *Queue[T]) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-q.notify
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-q.notify:
		return true
	case <-t.C:
		return false
	}
}

// Ready returns the notifier channel for use in select statements.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.notify
}
