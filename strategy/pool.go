package strategy

import (
	"context"

	"github.com/ygrebnov/workers"
)

// Pool is a Strategy backed by a fixed-size worker pool: at most n
// dispatched blocks run concurrently, the rest queue. This is the
// "typically backed by a thread pool" strategy spec.md §6 calls for, and
// gives NJOIN's maxOpen (number of running inner streams) an actual
// bounded-concurrency executor underneath it rather than an unbounded
// goroutine-per-fetch fire-and-forget.
type Pool struct {
	cancel context.CancelFunc
	w      workers.Workers[struct{}]
}

// NewPool starts a worker pool with n fixed workers (n<=0 falls back to a
// dynamically-sized pool, matching workers.WithDynamicPool's semantics).
func NewPool(n int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	var opt workers.Option
	if n > 0 {
		opt = workers.WithFixedPool(uint(n))
	} else {
		opt = workers.WithDynamicPool()
	}

	w := workers.NewOptions[struct{}](ctx, opt, workers.WithStartImmediately())

	p := &Pool{cancel: cancel, w: w}
	go p.drain()
	return p
}

// drain discards results/errors the underlying pool produces: Strategy's
// contract has fn report its own completion (typically by posting to a
// mailbox), so Pool only needs to keep the pool's own channels from
// filling up.
func (p *Pool) drain() {
	results := p.w.GetResults()
	errs := p.w.GetErrors()
	for {
		select {
		case _, ok := <-results:
			if !ok {
				return
			}
		case _, ok := <-errs:
			if !ok {
				return
			}
		}
	}
}

// Run implements Strategy by submitting fn as a task to the pool.
func (p *Pool) Run(fn func()) {
	_ = p.w.AddTask(func(context.Context) error {
		fn()
		return nil
	})
}

// Close stops the pool. Queued-but-not-yet-started tasks are discarded;
// in-flight ones finish.
func (p *Pool) Close() { p.cancel() }
