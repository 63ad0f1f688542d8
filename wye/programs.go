package wye

import "github.com/bgpfix/streamwye/cause"

// Pair holds one element from each side of a Yip merge.
type Pair[L, R any] struct {
	First  L
	Second R
}

func haltProgram[L, R, O any](c cause.Cause) Program[L, R, O] {
	return func() Step[L, R, O] { return Halt[L, R, O](c) }
}

func emitOne[L, R, O any](v O, next Program[L, R, O]) Program[L, R, O] {
	return func() Step[L, R, O] {
		return Emit([]O{v}, func(cause.Cause) Program[L, R, O] { return next })
	}
}

// Merge is the fs2 "merge" program: emits elements from whichever side is
// ready first, and halts only once both sides have ended, combining their
// causes with CausedBy (spec.md §8 scenario 2).
func Merge[T any]() Program[T, T, T] {
	return mergeBoth[T](cause.End, cause.End)
}

func mergeBoth[T any](lc, rc cause.Cause) Program[T, T, T] {
	return func() Step[T, T, T] {
		return AwaitBoth(func(d Delivery[T, T]) Program[T, T, T] {
			if d.IsLeft() {
				if d.IsHalt() {
					return mergeRightOnly[T](d.Cause(), rc)
				}
				return emitOne[T, T, T](d.Left(), mergeBoth[T](lc, rc))
			}
			if d.IsHalt() {
				return mergeLeftOnly[T](lc, d.Cause())
			}
			return emitOne[T, T, T](d.Right(), mergeBoth[T](lc, rc))
		})
	}
}

func mergeLeftOnly[T any](lc, rc cause.Cause) Program[T, T, T] {
	return func() Step[T, T, T] {
		return AwaitL(func(d Delivery[T, T]) Program[T, T, T] {
			if d.IsHalt() {
				return haltProgram[T, T, T](cause.CausedBy(d.Cause(), rc))
			}
			return emitOne[T, T, T](d.Left(), mergeLeftOnly[T](lc, rc))
		})
	}
}

func mergeRightOnly[T any](lc, rc cause.Cause) Program[T, T, T] {
	return func() Step[T, T, T] {
		return AwaitR(func(d Delivery[T, T]) Program[T, T, T] {
			if d.IsHalt() {
				return haltProgram[T, T, T](cause.CausedBy(lc, d.Cause()))
			}
			return emitOne[T, T, T](d.Right(), mergeRightOnly[T](lc, rc))
		})
	}
}

// Yip pairs elements positionally, one from each side in turn, and halts
// with whichever side ends first (spec.md §8 scenario 1).
func Yip[L, R any]() Program[L, R, Pair[L, R]] {
	return yipAwaitL[L, R]()
}

func yipAwaitL[L, R any]() Program[L, R, Pair[L, R]] {
	return func() Step[L, R, Pair[L, R]] {
		return AwaitL(func(d Delivery[L, R]) Program[L, R, Pair[L, R]] {
			if d.IsHalt() {
				return haltProgram[L, R, Pair[L, R]](d.Cause())
			}
			return yipAwaitR[L, R](d.Left())
		})
	}
}

func yipAwaitR[L, R any](l L) Program[L, R, Pair[L, R]] {
	return func() Step[L, R, Pair[L, R]] {
		return AwaitR(func(d Delivery[L, R]) Program[L, R, Pair[L, R]] {
			if d.IsHalt() {
				return haltProgram[L, R, Pair[L, R]](d.Cause())
			}
			return emitOne[L, R, Pair[L, R]](Pair[L, R]{First: l, Second: d.Right()}, yipAwaitL[L, R]())
		})
	}
}

// Interrupt emits left-side elements until either the left side ends, or
// the boolean right side delivers true, whichever comes first. Once the
// right side ends without ever delivering true, it stops being watched and
// the program degenerates to draining the left side alone (spec.md §8
// scenario 6).
func Interrupt[L any]() Program[L, bool, L] {
	return interruptBoth[L]()
}

func interruptBoth[L any]() Program[L, bool, L] {
	return func() Step[L, bool, L] {
		return AwaitBoth(func(d Delivery[L, bool]) Program[L, bool, L] {
			if d.IsLeft() {
				if d.IsHalt() {
					return haltProgram[L, bool, L](d.Cause())
				}
				return emitOne[L, bool, L](d.Left(), interruptBoth[L]())
			}
			if d.IsHalt() {
				return interruptLeftOnly[L]()
			}
			if d.Right() {
				return haltProgram[L, bool, L](cause.End)
			}
			return interruptBoth[L]()
		})
	}
}

func interruptLeftOnly[L any]() Program[L, bool, L] {
	return func() Step[L, bool, L] {
		return AwaitL(func(d Delivery[L, bool]) Program[L, bool, L] {
			if d.IsHalt() {
				return haltProgram[L, bool, L](d.Cause())
			}
			return emitOne[L, bool, L](d.Left(), interruptLeftOnly[L]())
		})
	}
}
