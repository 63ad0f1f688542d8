package strategy

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestGoroutineStrategyRunsConcurrently(t *testing.T) {
	var wg sync.WaitGroup
	var n atomic.Int32
	wg.Add(3)
	for i := 0; i < 3; i++ {
		Goroutine.Run(func() {
			n.Add(1)
			wg.Done()
		})
	}
	wg.Wait()
	assert.Equal(t, int32(3), n.Load())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	var running atomic.Int32
	var maxRunning atomic.Int32
	var wg sync.WaitGroup
	n := 10
	wg.Add(n)
	for i := 0; i < n; i++ {
		p.Run(func() {
			cur := running.Add(1)
			for {
				m := maxRunning.Load()
				if cur <= m || maxRunning.CompareAndSwap(m, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			wg.Done()
		})
	}
	wg.Wait()
	require.LessOrEqual(t, maxRunning.Load(), int32(2))
}

func TestRateLimited(t *testing.T) {
	rl := NewRateLimited(Goroutine, rate.Limit(1000), 1)
	var wg sync.WaitGroup
	wg.Add(1)
	rl.Run(func() { wg.Done() })
	wg.Wait()
}

func TestFuncStrategy(t *testing.T) {
	var called bool
	var fs FuncStrategy = func(fn func()) { fn() }
	fs.Run(func() { called = true })
	assert.True(t, called)
}
