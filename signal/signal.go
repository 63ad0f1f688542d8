// Package signal implements the discrete signal B<T> from spec.md §6: a
// thread-safe, single-write-many-read cell that supports Set, FailWithCause,
// and a view as a Stream of its values. NJOIN uses a
// Signal[bool] as its "done" cancellation broadcast (spec.md §3.4, §5):
// every running inner watches the same signal via Wait and cancels its own
// context once it goes true (or is failed), so setting it stops every
// inner without the engine tracking per-inner handles.
//
// Grounded on pipe.Pipe's generation-channel broadcast idiom (a channel
// that is closed, then replaced, to wake every waiter on a state change)
// used by Pipe.Wait/Pipe.Event, generalized here to carry a value instead
// of a bare close.
package signal

import (
	"context"
	"sync"

	"github.com/bgpfix/streamwye/cause"
	"github.com/bgpfix/streamwye/stream"
)

// Signal holds the latest value of type T plus an optional terminal cause.
// The zero value is not usable; construct with New.
type Signal[T any] struct {
	mu      sync.Mutex
	val     T
	version uint64
	changed chan struct{}

	hasCause bool
	cause    cause.Cause
}

// New returns a Signal initialized to v.
func New[T any](v T) *Signal[T] {
	return &Signal[T]{val: v, changed: make(chan struct{})}
}

// Set updates the held value and wakes every Stream/Wait waiter. A Set
// after FailWithCause is a no-op: once failed, a signal is terminal.
func (s *Signal[T]) Set(v T) {
	s.mu.Lock()
	if s.hasCause {
		s.mu.Unlock()
		return
	}
	s.val = v
	s.version++
	ch := s.changed
	s.changed = make(chan struct{})
	s.mu.Unlock()
	close(ch)
}

// FailWithCause terminates the signal: all current and future waiters
// observe c. The first cause wins; later calls (Set or FailWithCause) are
// no-ops.
func (s *Signal[T]) FailWithCause(c cause.Cause) {
	s.mu.Lock()
	if s.hasCause {
		s.mu.Unlock()
		return
	}
	s.hasCause = true
	s.cause = c
	ch := s.changed
	s.mu.Unlock()
	close(ch)
}

// Get returns the current value and, if the signal has been failed, the
// terminal cause and failed=true.
func (s *Signal[T]) Get() (v T, c cause.Cause, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val, s.cause, s.hasCause
}

// Wait blocks until the value differs from last (by version) or the
// signal is failed, returning the new value, its version, and whether the
// signal is now failed.
func (s *Signal[T]) Wait(ctx context.Context, last uint64) (v T, version uint64, c cause.Cause, failed bool, err error) {
	for {
		s.mu.Lock()
		if s.hasCause {
			v, c, failed = s.val, s.cause, true
			version = s.version
			s.mu.Unlock()
			return
		}
		if s.version != last {
			v, version = s.val, s.version
			s.mu.Unlock()
			return
		}
		ch := s.changed
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
}

// Stream returns a Stream of the signal's values, starting with its
// current value, emitting the latest value again after a Set (even when it
// equals the previous one; Sets made between two pulls yield only the
// latest), and halting with the signal's terminal cause once FailWithCause
// is called.
func (s *Signal[T]) Stream() stream.Stream[T] {
	return s.streamFrom(0, true)
}

func (s *Signal[T]) streamFrom(last uint64, first bool) stream.Stream[T] {
	return func() stream.Step[T] {
		s.mu.Lock()
		if !first && s.version == last && !s.hasCause {
			ch := s.changed
			s.mu.Unlock()
			<-ch
			return s.streamFrom(last, false)()
		}
		if s.hasCause && s.version == last {
			c := s.cause
			s.mu.Unlock()
			return stream.Halt[T](c)
		}
		v, ver := s.val, s.version
		s.mu.Unlock()
		return stream.Emit([]T{v}, func(cause.Cause) stream.Stream[T] {
			return s.streamFrom(ver, false)
		})
	}
}
