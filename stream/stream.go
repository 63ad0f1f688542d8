// Package stream implements the pull-based stream step protocol that the
// wye and njoin merge combinators are built on (spec.md §3.2, §6). A
// Stream is a suspended computation: stepping it yields either a chunk of
// elements plus a continuation, or a terminal Cause. Construction and the
// handful of sequential combinators here are the "straightforward
// pull-based evaluation" surrounding the concurrent core — deliberately
// minimal, since fusing/optimizing them is out of the core's scope.
package stream

import "github.com/bgpfix/streamwye/cause"

// Step is the result of stepping a Stream once: either a non-empty chunk
// with a continuation, or a terminal cause. Constructed via Emit/Halt.
type Step[T any] struct {
	chunk []T
	next  func(cause.Cause) Stream[T]
	halt  cause.Cause
	isEnd bool // true for Halt steps; distinguishes a Halt(End) from zero value
}

// Emit builds a Step carrying chunk and a continuation. Passing cause.End
// to next means "continue normally"; passing Kill or Error requests
// abrupt cleanup and returns a drained stream that performs only
// finalizers.
func Emit[T any](chunk []T, next func(cause.Cause) Stream[T]) Step[T] {
	return Step[T]{chunk: chunk, next: next}
}

// Halt builds a terminal Step.
func Halt[T any](c cause.Cause) Step[T] {
	return Step[T]{halt: c, isEnd: true}
}

// IsHalt reports whether this is a terminal step.
func (s Step[T]) IsHalt() bool { return s.isEnd }

// Chunk returns the emitted elements; valid only when !IsHalt().
func (s Step[T]) Chunk() []T { return s.chunk }

// Next invokes the continuation with c; valid only when !IsHalt().
func (s Step[T]) Next(c cause.Cause) Stream[T] { return s.next(c) }

// Cause returns the terminal cause; valid only when IsHalt().
func (s Step[T]) Cause() cause.Cause { return s.halt }

// Stream is a suspended pull-based source of T. Stepping it is the only
// operation; a Stream itself does no work until stepped.
type Stream[T any] func() Step[T]

// Empty is the stream that halts immediately with End.
func Empty[T any]() Stream[T] {
	return func() Step[T] { return Halt[T](cause.End) }
}

// Of returns a stream that emits exactly chunk once then halts with End.
func Of[T any](chunk ...T) Stream[T] {
	return func() Step[T] {
		return Emit(chunk, func(cause.Cause) Stream[T] { return Empty[T]() })
	}
}

// FromSlice is an alias of Of kept for call sites that already hold a slice.
func FromSlice[T any](items []T) Stream[T] {
	return Of(items...)
}

// Fail returns a stream that halts immediately with the given cause.
func Fail[T any](c cause.Cause) Stream[T] {
	return func() Step[T] { return Halt[T](c) }
}

// Eval returns a one-shot stream that runs fn once, emits its result as a
// singleton chunk on success, or halts with cause.Errorf(err) on failure.
func Eval[T any](fn func() (T, error)) Stream[T] {
	return func() Step[T] {
		v, err := fn()
		if err != nil {
			return Halt[T](cause.Errorf(err))
		}
		return Emit([]T{v}, func(cause.Cause) Stream[T] { return Empty[T]() })
	}
}

// Run drives s to completion, invoking onChunk for every emitted chunk.
// onChunk's return value becomes the cause fed to the continuation
// (normally cause.End; returning a Kill/Error cause requests cleanup and
// stops consumption early). Run returns the terminal cause.
func Run[T any](s Stream[T], onChunk func(chunk []T) cause.Cause) cause.Cause {
	draining := false
	var drainCause cause.Cause
	for {
		step := s()
		if step.IsHalt() {
			return step.Cause()
		}
		if draining {
			s = step.Next(drainCause)
			continue
		}
		c := onChunk(step.Chunk())
		s = step.Next(c)
		if !c.IsEnd() {
			draining = true
			drainCause = c
		}
	}
}

// RunCollect drives s to completion and collects every emitted element.
// Intended for tests and small finite streams.
func RunCollect[T any](s Stream[T]) ([]T, cause.Cause) {
	var out []T
	c := Run(s, func(chunk []T) cause.Cause {
		out = append(out, chunk...)
		return cause.End
	})
	return out, c
}
