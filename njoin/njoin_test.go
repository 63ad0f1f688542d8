package njoin

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bgpfix/streamwye/cause"
	"github.com/bgpfix/streamwye/strategy"
	"github.com/bgpfix/streamwye/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outerOf(inners ...stream.Stream[int]) stream.Stream[stream.Stream[int]] {
	return stream.Of(inners...)
}

func TestMergesAllElements(t *testing.T) {
	a := stream.Of(1, 2)
	b := stream.Of(10, 20, 30)
	c := stream.Of(100)

	out := NJoin(0, 0, outerOf(a, b, c), strategy.Goroutine)
	got, halt := stream.RunCollect(out)

	require.True(t, halt.IsEnd())
	sort.Ints(got)
	assert.Equal(t, []int{1, 2, 10, 20, 30, 100}, got)
}

func TestMaxOpenBoundsConcurrency(t *testing.T) {
	const n = 8
	const maxOpen = 2

	var current, peak int32
	release := make(chan struct{})

	inner := func(v int) stream.Stream[int] {
		return func() stream.Step[int] {
			c := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if c <= p || atomic.CompareAndSwapInt32(&peak, p, c) {
					break
				}
			}
			<-release
			atomic.AddInt32(&current, -1)
			return stream.Emit([]int{v}, func(cause.Cause) stream.Stream[int] { return stream.Empty[int]() })
		}
	}

	inners := make([]stream.Stream[int], n)
	for i := 0; i < n; i++ {
		inners[i] = inner(i)
	}

	out := NJoin(maxOpen, 0, outerOf(inners...), strategy.Goroutine)

	done := make(chan []int, 1)
	go func() {
		got, _ := stream.RunCollect(out)
		done <- got
	}()

	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, int(atomic.LoadInt32(&current)), maxOpen)
	close(release)

	select {
	case got := <-done:
		assert.Len(t, got, n)
	case <-time.After(time.Second):
		t.Fatal("njoin never drained after release")
	}
	assert.LessOrEqual(t, int(atomic.LoadInt32(&peak)), maxOpen)
}

func TestMaxQueuedBoundsBuffer(t *testing.T) {
	const maxQueued = 2
	source := stream.Of(stream.Of(1, 2, 3, 4, 5))

	e := newTestEngineNoRun(t, 1, maxQueued, source)
	go e.mailbox.Run(e.handle)
	e.mailbox.Post(msgStart{})

	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, e.queue.Len(), maxQueued)
}

type boomErr struct{ msg string }

func (e *boomErr) Error() string { return e.msg }

func TestInnerErrorKillsHealthySiblings(t *testing.T) {
	siblingFinalized := make(chan struct{}, 1)

	sibling := func() stream.Stream[int] {
		var self func(i int) stream.Stream[int]
		self = func(i int) stream.Stream[int] {
			return func() stream.Step[int] {
				if i > 10000 {
					return stream.Halt[int](cause.End)
				}
				return stream.Emit([]int{i}, func(c cause.Cause) stream.Stream[int] {
					if !c.IsEnd() {
						siblingFinalized <- struct{}{}
						return stream.Empty[int]()
					}
					return self(i + 1)
				})
			}
		}
		return self(0)
	}()

	failing := stream.Append(
		stream.Of(1),
		stream.Fail[int](cause.Errorf(&boomErr{"inner failed"})),
	)

	out := NJoin(0, 0, outerOf(sibling, failing), strategy.Goroutine)
	_, halt := stream.RunCollect(out)

	require.True(t, halt.IsError())
	select {
	case <-siblingFinalized:
	case <-time.After(time.Second):
		t.Fatal("healthy sibling was never finalized after a sibling's error")
	}
}

func TestConsumerStopEarlyKillsAllInnersAndOuter(t *testing.T) {
	var finalized sync.WaitGroup
	finalized.Add(2)

	mkInfinite := func(start int) stream.Stream[int] {
		var self func(i int) stream.Stream[int]
		self = func(i int) stream.Stream[int] {
			return func() stream.Step[int] {
				return stream.Emit([]int{i}, func(c cause.Cause) stream.Stream[int] {
					if !c.IsEnd() {
						finalized.Done()
						return stream.Empty[int]()
					}
					return self(i + 1)
				})
			}
		}
		return self(start)
	}

	out := NJoin(0, 0, outerOf(mkInfinite(0), mkInfinite(1000)), strategy.Goroutine)

	count := 0
	halt := stream.Run(out, func(chunk []int) cause.Cause {
		count += len(chunk)
		if count >= 3 {
			return cause.KillCause
		}
		return cause.End
	})
	assert.True(t, halt.IsKill() || halt.IsEnd())

	done := make(chan struct{})
	go func() {
		finalized.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all inners were finalized after early consumer stop")
	}
}

func TestStatsReportsOpenAndQueued(t *testing.T) {
	release := make(chan struct{})
	hold := func(v int) stream.Stream[int] {
		return func() stream.Step[int] {
			<-release
			return stream.Emit([]int{v}, func(cause.Cause) stream.Stream[int] { return stream.Empty[int]() })
		}
	}

	source := stream.Of(hold(1), hold(2), hold(3))
	e := newTestEngine(t, 2, 0, source)

	time.Sleep(20 * time.Millisecond)
	st := e.Stats()
	assert.LessOrEqual(t, st.OpenCount, 2)
	assert.Equal(t, 0, st.QueuedCount)
	close(release)
}

// newTestEngineNoRun constructs an Engine without starting its mailbox
// goroutine, for tests that want to control exactly when it starts.
func newTestEngineNoRun(t *testing.T, maxOpen, maxQueued int, source stream.Stream[stream.Stream[int]]) *Engine[int] {
	t.Helper()
	return newEngine(maxOpen, maxQueued, source, strategy.Goroutine)
}

// newTestEngine starts an Engine via the exported New/Stream split, for
// tests that need to call Stats/Inspect concurrently with draining.
func newTestEngine(t *testing.T, maxOpen, maxQueued int, source stream.Stream[stream.Stream[int]]) *Engine[int] {
	t.Helper()
	e := New(maxOpen, maxQueued, source, strategy.Goroutine)
	go func() {
		_, _ = stream.RunCollect(e.Stream())
	}()
	return e
}

func TestStatsAfterTerminationReturnsInsteadOfHanging(t *testing.T) {
	e := New[int](0, 0, outerOf(stream.Of(1, 2)), strategy.Goroutine)
	_, halt := stream.RunCollect(e.Stream())
	require.True(t, halt.IsEnd())

	done := make(chan Stats, 1)
	go func() { done <- e.Stats() }()

	select {
	case st := <-done:
		assert.Equal(t, 0, st.OpenCount)
		assert.True(t, st.OuterDone)
	case <-time.After(time.Second):
		t.Fatal("Stats hung after engine termination")
	}
}

func TestInspectListsRunningIDs(t *testing.T) {
	release := make(chan struct{})
	hold := func(v int) stream.Stream[int] {
		return func() stream.Step[int] {
			<-release
			return stream.Emit([]int{v}, func(cause.Cause) stream.Stream[int] { return stream.Empty[int]() })
		}
	}
	source := stream.Of(hold(1))
	e := newTestEngine(t, 1, 0, source)
	time.Sleep(20 * time.Millisecond)
	ids := e.Inspect()
	assert.NotEmpty(t, ids)
	close(release)
}

func ExampleNJoin() {
	out := NJoin(0, 0, outerOf(stream.Of(1), stream.Of(2)), strategy.Goroutine)
	got, _ := stream.RunCollect(out)
	sort.Ints(got)
	fmt.Println(got)
	// Output: [1 2]
}
