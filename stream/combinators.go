package stream

import "github.com/bgpfix/streamwye/cause"

// Map transforms every element of s with fn.
func Map[T, U any](s Stream[T], fn func(T) U) Stream[U] {
	return func() Step[U] {
		step := s()
		if step.IsHalt() {
			return Halt[U](step.Cause())
		}
		chunk := step.Chunk()
		out := make([]U, len(chunk))
		for i, v := range chunk {
			out[i] = fn(v)
		}
		return Emit(out, func(c cause.Cause) Stream[U] { return Map(step.Next(c), fn) })
	}
}

// Filter keeps only elements for which keep returns true.
func Filter[T any](s Stream[T], keep func(T) bool) Stream[T] {
	return func() Step[T] {
		for {
			step := s()
			if step.IsHalt() {
				return Halt[T](step.Cause())
			}
			chunk := step.Chunk()
			var out []T
			for _, v := range chunk {
				if keep(v) {
					out = append(out, v)
				}
			}
			next := step.Next(cause.End)
			if len(out) == 0 {
				s = next
				continue
			}
			return Emit(out, func(c cause.Cause) Stream[T] {
				if c.IsEnd() {
					return Filter(next, keep)
				}
				return Filter(step.Next(c), keep)
			})
		}
	}
}

// Take emits at most n elements total, then halts with End, killing the
// source if it still has more to give.
func Take[T any](s Stream[T], n int) Stream[T] {
	if n <= 0 {
		return func() Step[T] {
			drained(s, cause.KillCause)
			return Halt[T](cause.End)
		}
	}
	return func() Step[T] {
		step := s()
		if step.IsHalt() {
			return Halt[T](step.Cause())
		}
		chunk := step.Chunk()
		if len(chunk) >= n {
			taken := chunk[:n]
			return Emit(taken, func(cause.Cause) Stream[T] {
				drained(step.Next(cause.KillCause), cause.End)
				return Empty[T]()
			})
		}
		return Emit(chunk, func(c cause.Cause) Stream[T] {
			if !c.IsEnd() {
				return step.Next(c)
			}
			return Take(step.Next(c), n-len(chunk))
		})
	}
}

// Drop discards the first n elements, then emits the rest unchanged.
func Drop[T any](s Stream[T], n int) Stream[T] {
	if n <= 0 {
		return s
	}
	return func() Step[T] {
		step := s()
		if step.IsHalt() {
			return Halt[T](step.Cause())
		}
		chunk := step.Chunk()
		next := step.Next(cause.End)
		if len(chunk) <= n {
			return Drop(next, n-len(chunk))()
		}
		return Emit(chunk[n:], func(c cause.Cause) Stream[T] { return step.Next(c) })
	}
}

// Append runs a, then on its End runs b. A Kill or Error from a propagates
// without running b.
func Append[T any](a, b Stream[T]) Stream[T] {
	return func() Step[T] {
		step := a()
		if step.IsHalt() {
			c := step.Cause()
			if c.IsEnd() {
				return b()
			}
			return Halt[T](c)
		}
		return Emit(step.Chunk(), func(c cause.Cause) Stream[T] {
			if !c.IsEnd() {
				return step.Next(c)
			}
			return Append(step.Next(c), b)
		})
	}
}

// Repeat runs s to completion, then restarts it, forever (until killed).
func Repeat[T any](s Stream[T]) Stream[T] {
	var from func(cur Stream[T]) Stream[T]
	from = func(cur Stream[T]) Stream[T] {
		return func() Step[T] {
			step := cur()
			if step.IsHalt() {
				c := step.Cause()
				if c.IsEnd() {
					return from(s)()
				}
				return Halt[T](c)
			}
			return Emit(step.Chunk(), func(c cause.Cause) Stream[T] {
				if !c.IsEnd() {
					return step.Next(c)
				}
				return from(step.Next(c))
			})
		}
	}
	return from(s)
}

// Chunked regroups elements into chunks of at most size n (n<=0 passes
// chunks through unchanged).
func Chunked[T any](s Stream[T], n int) Stream[T] {
	if n <= 0 {
		return s
	}
	return func() Step[T] {
		var buf []T
		for len(buf) < n {
			step := s()
			if step.IsHalt() {
				c := step.Cause()
				if len(buf) == 0 {
					return Halt[T](c)
				}
				return Emit(buf, func(cause.Cause) Stream[T] { return Fail[T](c) })
			}
			buf = append(buf, step.Chunk()...)
			s = step.Next(cause.End)
		}
		head, rest := buf[:n], buf[n:]
		tail := s
		return Emit(head, func(c cause.Cause) Stream[T] {
			if !c.IsEnd() {
				drained(tail, c)
				return Empty[T]()
			}
			return Chunked(Append(Of(rest...), tail), n)
		})
	}
}

// drained runs s to a halt feeding every continuation c, to ensure
// finalizers run when a consumer abandons a stream mid-chunk.
func drained[T any](s Stream[T], c cause.Cause) cause.Cause {
	for {
		step := s()
		if step.IsHalt() {
			return step.Cause()
		}
		s = step.Next(c)
	}
}
