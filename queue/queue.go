// Package queue implements the bounded queue Q[T] from spec.md §6: a
// buffer that suspends Enqueue when full and Dequeue when empty, and can
// be failed with a terminal Cause that unblocks every waiter. It backs
// NJOIN's output buffer (spec.md §3.4, §4.3.1).
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/bgpfix/streamwye/cause"
)

// ErrFailed is returned from Enqueue/Dequeue once the queue has been
// failed with Kill.
var ErrFailed = errors.New("queue: failed")

// ErrEnded is returned from Dequeue once the queue has been failed with
// End and fully drained. Distinguishing it from a nil error matters
// because a legitimately dequeued value may itself be T's zero value.
var ErrEnded = errors.New("queue: ended")

// Queue is a generic FIFO buffer. Capacity 0 means unbounded. The zero
// value is not usable; construct with New.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	notEmpty chan struct{}
	notFull  chan struct{}
	hasCause bool
	cause    cause.Cause
}

// New returns an empty Queue with the given capacity (0 = unbounded).
func New[T any](capacity int) *Queue[T] {
	return &Queue[T]{
		capacity: capacity,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Len reports the number of buffered, undelivered elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Enqueue appends v, blocking while the queue is at capacity. Returns the
// queue's failure error if the queue has been failed, or ctx.Err() if ctx
// is done first.
func (q *Queue[T]) Enqueue(ctx context.Context, v T) error {
	for {
		q.mu.Lock()
		if q.hasCause {
			c := q.cause
			q.mu.Unlock()
			signal(q.notFull) // pass the wakeup on to the next blocked Enqueue
			return causeErr(c)
		}
		if q.capacity <= 0 || len(q.items) < q.capacity {
			q.items = append(q.items, v)
			q.mu.Unlock()
			signal(q.notEmpty)
			return nil
		}
		q.mu.Unlock()
		select {
		case <-q.notFull:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Dequeue removes and returns the oldest element, blocking while the
// queue is empty. Once failed and drained, it returns the failure error.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			signal(q.notFull)
			return v, nil
		}
		if q.hasCause {
			c := q.cause
			q.mu.Unlock()
			signal(q.notEmpty) // pass the wakeup on to the next blocked Dequeue
			var zero T
			return zero, causeErr(c)
		}
		q.mu.Unlock()
		select {
		case <-q.notEmpty:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// FailWithCause marks the queue terminally failed with c: already-buffered
// elements remain dequeuable whatever c is, and once they are drained every
// blocked or future Dequeue observes the failure; every blocked or future
// Enqueue observes it at once. The first cause wins; later calls are no-ops.
func (q *Queue[T]) FailWithCause(c cause.Cause) {
	q.mu.Lock()
	if q.hasCause {
		q.mu.Unlock()
		return
	}
	q.hasCause = true
	q.cause = c
	q.mu.Unlock()
	signal(q.notEmpty)
	signal(q.notFull)
}

func causeErr(c cause.Cause) error {
	if c.IsError() {
		return c.Err()
	}
	if c.IsKill() {
		return ErrFailed
	}
	return ErrEnded
}
