package strategy

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps another Strategy, throttling how often it dispatches,
// mirroring pipe.Callback.LimitRate *rate.Limiter from the BGP callback
// pipeline this module's mailbox/engine design is otherwise grounded on.
type RateLimited struct {
	next    Strategy
	limiter *rate.Limiter
}

// NewRateLimited throttles dispatch to r events/sec with the given burst,
// running fn on next once the limiter admits it. Waiting for a token
// blocks the calling goroutine of Run, not the scheduled fn itself.
func NewRateLimited(next Strategy, r rate.Limit, burst int) *RateLimited {
	return &RateLimited{next: next, limiter: rate.NewLimiter(r, burst)}
}

// Run implements Strategy: it blocks until the limiter admits one more
// dispatch, then hands fn to the wrapped Strategy.
func (rl *RateLimited) Run(fn func()) {
	_ = rl.limiter.Wait(context.Background())
	rl.next.Run(fn)
}
