// Package wye implements the two-source merge engine from spec.md §4.2: a
// stream of O driven by a reusable "merge program" — a suspended state
// machine that decides, at each step, which side(s) to read from and what
// to emit. The program itself is a value of the stream abstraction (spec.md
// §9), generalized here over ReceiveY[L,R] instead of a plain element type.
package wye

import "github.com/bgpfix/streamwye/cause"

// side tags a Delivery as having come from the left or right source.
type side uint8

const (
	sideLeft side = iota
	sideRight
)

// Delivery is what a merge program's AwaitL/AwaitR/AwaitBoth continuation
// receives: an element from the named side, or that side's terminal cause
// (spec.md §3.2's "HaltL/HaltR or a combined halt").
type Delivery[L, R any] struct {
	s      side
	elemL  L
	elemR  R
	isHalt bool
	cause  cause.Cause
}

// DeliverL wraps a left-side element.
func DeliverL[L, R any](v L) Delivery[L, R] { return Delivery[L, R]{s: sideLeft, elemL: v} }

// DeliverR wraps a right-side element.
func DeliverR[L, R any](v R) Delivery[L, R] { return Delivery[L, R]{s: sideRight, elemR: v} }

// HaltL wraps the left side's terminal cause.
func HaltL[L, R any](c cause.Cause) Delivery[L, R] {
	return Delivery[L, R]{s: sideLeft, isHalt: true, cause: c}
}

// HaltR wraps the right side's terminal cause.
func HaltR[L, R any](c cause.Cause) Delivery[L, R] {
	return Delivery[L, R]{s: sideRight, isHalt: true, cause: c}
}

// IsLeft reports whether this delivery came from the left side.
func (d Delivery[L, R]) IsLeft() bool { return d.s == sideLeft }

// IsRight reports whether this delivery came from the right side.
func (d Delivery[L, R]) IsRight() bool { return d.s == sideRight }

// IsHalt reports whether this delivery is a side's terminal cause rather
// than an element.
func (d Delivery[L, R]) IsHalt() bool { return d.isHalt }

// Left returns the delivered left element; valid only when IsLeft() and
// !IsHalt().
func (d Delivery[L, R]) Left() L { return d.elemL }

// Right returns the delivered right element; valid only when IsRight()
// and !IsHalt().
func (d Delivery[L, R]) Right() R { return d.elemR }

// Cause returns the side's terminal cause; valid only when IsHalt().
func (d Delivery[L, R]) Cause() cause.Cause { return d.cause }

type stepKind uint8

const (
	kindEmit stepKind = iota
	kindAwaitL
	kindAwaitR
	kindAwaitBoth
	kindHalt
)

// Step is the result of stepping a Program once.
type Step[L, R, O any] struct {
	kind      stepKind
	chunk     []O
	emitNext  func(cause.Cause) Program[L, R, O]
	awaitNext func(Delivery[L, R]) Program[L, R, O]
	halt      cause.Cause
}

// Emit builds a Step that emits chunk then continues via next.
func Emit[L, R, O any](chunk []O, next func(cause.Cause) Program[L, R, O]) Step[L, R, O] {
	return Step[L, R, O]{kind: kindEmit, chunk: chunk, emitNext: next}
}

// AwaitL builds a Step suspended on the left side only.
func AwaitL[L, R, O any](next func(Delivery[L, R]) Program[L, R, O]) Step[L, R, O] {
	return Step[L, R, O]{kind: kindAwaitL, awaitNext: next}
}

// AwaitR builds a Step suspended on the right side only.
func AwaitR[L, R, O any](next func(Delivery[L, R]) Program[L, R, O]) Step[L, R, O] {
	return Step[L, R, O]{kind: kindAwaitR, awaitNext: next}
}

// AwaitBoth builds a Step suspended on whichever side delivers first.
func AwaitBoth[L, R, O any](next func(Delivery[L, R]) Program[L, R, O]) Step[L, R, O] {
	return Step[L, R, O]{kind: kindAwaitBoth, awaitNext: next}
}

// Halt builds a terminal Step.
func Halt[L, R, O any](c cause.Cause) Step[L, R, O] {
	return Step[L, R, O]{kind: kindHalt, halt: c}
}

func (s Step[L, R, O]) IsEmit() bool      { return s.kind == kindEmit }
func (s Step[L, R, O]) IsAwaitL() bool    { return s.kind == kindAwaitL }
func (s Step[L, R, O]) IsAwaitR() bool    { return s.kind == kindAwaitR }
func (s Step[L, R, O]) IsAwaitBoth() bool { return s.kind == kindAwaitBoth }
func (s Step[L, R, O]) IsHalt() bool      { return s.kind == kindHalt }

// Chunk returns the emitted elements; valid only when IsEmit().
func (s Step[L, R, O]) Chunk() []O { return s.chunk }

// Next invokes the Emit continuation; valid only when IsEmit().
func (s Step[L, R, O]) Next(c cause.Cause) Program[L, R, O] { return s.emitNext(c) }

// Deliver invokes an Await continuation with d; valid only when IsAwaitL(),
// IsAwaitR() or IsAwaitBoth().
func (s Step[L, R, O]) Deliver(d Delivery[L, R]) Program[L, R, O] { return s.awaitNext(d) }

// Cause returns the terminal cause; valid only when IsHalt().
func (s Step[L, R, O]) Cause() cause.Cause { return s.halt }

// Program is a suspended merge program: a stream over Delivery[L,R] that
// produces elements of type O (spec.md §6's M<L,R,O>).
type Program[L, R, O any] func() Step[L, R, O]

// FeedL delivers v to a program currently awaiting the left side (AwaitL
// or AwaitBoth). Callers must only invoke this when the program's current
// step is in fact awaiting the left side.
func FeedL[L, R, O any](step Step[L, R, O], v L) Program[L, R, O] {
	return step.Deliver(DeliverL[L, R](v))
}

// FeedR delivers v to a program currently awaiting the right side.
func FeedR[L, R, O any](step Step[L, R, O], v R) Program[L, R, O] {
	return step.Deliver(DeliverR[L, R](v))
}

// DisconnectL transforms p so that every current and future await for the
// left side is immediately answered with HaltL(c), without the engine
// needing to track that the left side is dead (spec.md GLOSSARY:
// "Disconnect").
func DisconnectL[L, R, O any](p Program[L, R, O], c cause.Cause) Program[L, R, O] {
	return func() Step[L, R, O] {
		step := p()
		switch step.kind {
		case kindHalt, kindAwaitR:
			return disconnectLStep(step, c)
		case kindEmit:
			next := step.emitNext
			return Emit(step.chunk, func(fc cause.Cause) Program[L, R, O] {
				return DisconnectL(next(fc), c)
			})
		default: // kindAwaitL, kindAwaitBoth
			return DisconnectL(step.awaitNext(HaltL[L, R](c)), c)()
		}
	}
}

func disconnectLStep[L, R, O any](step Step[L, R, O], c cause.Cause) Step[L, R, O] {
	if step.kind == kindHalt {
		return step
	}
	awaitNext := step.awaitNext
	return AwaitR(func(d Delivery[L, R]) Program[L, R, O] {
		return DisconnectL(awaitNext(d), c)
	})
}

// DisconnectR is the mirror of DisconnectL for the right side.
func DisconnectR[L, R, O any](p Program[L, R, O], c cause.Cause) Program[L, R, O] {
	return func() Step[L, R, O] {
		step := p()
		switch step.kind {
		case kindHalt, kindAwaitL:
			return disconnectRStep(step, c)
		case kindEmit:
			next := step.emitNext
			return Emit(step.chunk, func(fc cause.Cause) Program[L, R, O] {
				return DisconnectR(next(fc), c)
			})
		default: // kindAwaitR, kindAwaitBoth
			return DisconnectR(step.awaitNext(HaltR[L, R](c)), c)()
		}
	}
}

func disconnectRStep[L, R, O any](step Step[L, R, O], c cause.Cause) Step[L, R, O] {
	if step.kind == kindHalt {
		return step
	}
	awaitNext := step.awaitNext
	return AwaitL(func(d Delivery[L, R]) Program[L, R, O] {
		return DisconnectR(awaitNext(d), c)
	})
}
