// Package njoin implements the dynamic many-stream merge engine from
// spec.md §4.3: a bounded number of inner streams, produced one at a time
// by an outer stream, are run concurrently and their elements merged into
// one bounded output queue.
package njoin

import (
	"context"
	"errors"

	"github.com/bgpfix/streamwye/cause"
	"github.com/bgpfix/streamwye/internal/mailbox"
	"github.com/bgpfix/streamwye/queue"
	"github.com/bgpfix/streamwye/signal"
	"github.com/bgpfix/streamwye/strategy"
	"github.com/bgpfix/streamwye/stream"
	"github.com/bgpfix/streamwye/trace"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

// ErrClosed is the sentinel error for an Engine that has already
// terminated. No function in this package returns it: after termination
// the merged stream reports its terminal Cause and Stats a final snapshot.
var ErrClosed = errors.New("njoin: closed")

// DefaultOptions mirrors wye's: logging on by default.
var DefaultOptions = Options{Logger: &log.Logger}

// Options configures an NJoin engine.
type Options struct {
	Logger *zerolog.Logger // if nil, logging is disabled
	Trace  *trace.Sink     // if nil, no lifecycle trace is emitted
}

// errString renders c's wrapped error, or "" for End/Kill.
func errString(c cause.Cause) string {
	if c.IsError() {
		return c.Err().Error()
	}
	return ""
}

// ApplyMap loosely applies config from an untyped map.
func (o *Options) ApplyMap(m map[string]any) error {
	if v, ok := m["debug"]; ok {
		debug, err := cast.ToBoolE(v)
		if err != nil {
			return err
		}
		if debug {
			l := log.Logger
			o.Logger = &l
		} else {
			o.Logger = nil
		}
	}
	return nil
}

type outerKind uint8

const (
	// outerIdle covers both "never fetched yet" (spec.md §9's collapsed
	// Starting variant) and "fetched, nothing pending, ready to fetch
	// more" — the two are never observably distinct, see DESIGN.md.
	outerIdle outerKind = iota
	outerRunning
	outerDone
)

type outerSlot[A any] struct {
	kind        outerKind
	cont        func(cause.Cause) stream.Stream[stream.Stream[A]]
	pending     []stream.Stream[A]
	cause       cause.Cause
	killPending bool
}

type msgStart struct{}

type msgOffer[A any] struct {
	chunk []stream.Stream[A]
	next  func(cause.Cause) stream.Stream[stream.Stream[A]]
}

type msgFinishedSource struct{ cause cause.Cause }

type msgFinished struct {
	id    int64
	cause cause.Cause
}

type msgFinishedDown struct{}

// Engine drives an outer stream of inner streams, bounded by maxOpen
// concurrently running inners and maxQueued buffered output elements
// (spec.md §4.3).
type Engine[A any] struct {
	mailbox  *mailbox.Mailbox[any]
	strategy strategy.Strategy
	log      zerolog.Logger
	trace    *trace.Sink

	maxOpen int

	outer     outerSlot[A]
	openCount int
	nextID    int64
	running   *xsync.MapOf[int64, struct{}]

	queue *queue.Queue[A]
	done  *signal.Signal[bool]

	shuttingDown bool
	terminated   bool
	finalCause   cause.Cause
}

// NJoin merges the inner streams produced by source, bounded by maxOpen
// concurrently running inners (0 = unlimited) and maxQueued buffered
// output elements (0 = unlimited), per spec.md §6's
// njoin(maxOpen, maxQueued, source, strategy) -> stream<A>.
//
// NJoin discards the engine handle; callers that need Stats/Inspect
// introspection alongside the merged stream should call New instead.
func NJoin[A any](maxOpen, maxQueued int, source stream.Stream[stream.Stream[A]], strat strategy.Strategy, opts ...Options) stream.Stream[A] {
	return New(maxOpen, maxQueued, source, strat, opts...).Stream()
}

// New starts the engine and returns a handle exposing both the merged
// stream (via Stream) and operator-facing introspection (Stats, Inspect).
func New[A any](maxOpen, maxQueued int, source stream.Stream[stream.Stream[A]], strat strategy.Strategy, opts ...Options) *Engine[A] {
	e := newEngine(maxOpen, maxQueued, source, strat, opts...)
	e.trace.Emit("njoin", "start", "", -1, "", "")
	go e.mailbox.Run(e.handle)
	e.mailbox.Post(msgStart{})
	return e
}

// Stream returns the merged output stream. Like any Stream, it must only
// be pulled by one consumer at a time.
func (e *Engine[A]) Stream() stream.Stream[A] {
	return e.pull()
}

func newEngine[A any](maxOpen, maxQueued int, source stream.Stream[stream.Stream[A]], strat strategy.Strategy, opts ...Options) *Engine[A] {
	o := DefaultOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	lg := zerolog.Nop()
	if o.Logger != nil {
		lg = *o.Logger
	}

	e := &Engine[A]{
		mailbox:  mailbox.New[any](),
		strategy: strat,
		log:      lg,
		trace:    o.Trace,
		maxOpen:  maxOpen,
		queue:    queue.New[A](maxQueued),
		done:     signal.New(false),
		running:  xsync.NewMapOf[int64, struct{}](),
	}
	e.outer.kind = outerIdle
	e.outer.cont = func(cause.Cause) stream.Stream[stream.Stream[A]] { return source }
	return e
}

func (e *Engine[A]) pull() stream.Stream[A] {
	return func() stream.Step[A] {
		v, err := e.queue.Dequeue(context.Background())
		if err == nil {
			return stream.Emit([]A{v}, func(c cause.Cause) stream.Stream[A] {
				if c.IsEnd() {
					return e.pull()
				}
				e.notifyDown()
				return stream.Empty[A]()
			})
		}
		if errors.Is(err, queue.ErrEnded) {
			return stream.Halt[A](cause.End)
		}
		if errors.Is(err, queue.ErrFailed) {
			return stream.Halt[A](cause.KillCause)
		}
		return stream.Halt[A](cause.Errorf(err))
	}
}

func (e *Engine[A]) notifyDown() {
	e.mailbox.Post(msgFinishedDown{})
}

func (e *Engine[A]) handle(m any) {
	switch msg := m.(type) {
	case msgStart:
		e.ensureOuter()
	case msgOffer[A]:
		e.onOffer(msg)
	case msgFinishedSource:
		e.onFinishedSource(msg.cause)
	case msgFinished:
		e.onFinished(msg.id, msg.cause)
	case msgFinishedDown:
		e.log.Debug().Msg("njoin: downstream done")
		e.fatal(cause.KillCause)
	case msgStats:
		e.onStats(msg)
	}
}

func (e *Engine[A]) ensureOuter() {
	if e.terminated {
		return
	}
	for len(e.outer.pending) > 0 {
		if e.maxOpen > 0 && e.openCount >= e.maxOpen {
			return
		}
		p := e.outer.pending[0]
		e.outer.pending = e.outer.pending[1:]
		e.startInner(p)
	}
	if e.outer.kind == outerIdle && (e.maxOpen == 0 || e.openCount < e.maxOpen) {
		e.runOuter()
	}
}

func (e *Engine[A]) runOuter() {
	if e.outer.kind != outerIdle {
		return
	}
	cont := e.outer.cont
	e.outer.kind = outerRunning
	e.log.Debug().Msg("njoin: fetching outer")
	e.strategy.Run(func() {
		step := cont(cause.End)()
		if step.IsHalt() {
			e.mailbox.Post(msgFinishedSource{cause: step.Cause()})
			return
		}
		e.mailbox.Post(msgOffer[A]{chunk: step.Chunk(), next: step.Next})
	})
}

func (e *Engine[A]) onOffer(msg msgOffer[A]) {
	if e.outer.killPending {
		e.outer.kind = outerRunning
		e.dispatchDrainOuter(msg.next)
		return
	}
	e.outer.kind = outerIdle
	e.outer.cont = msg.next
	e.outer.pending = append(e.outer.pending, msg.chunk...)
	e.ensureOuter()
}

func (e *Engine[A]) onFinishedSource(c cause.Cause) {
	e.outer.kind = outerDone
	e.outer.cause = c
	e.outer.killPending = false
	e.log.Debug().Str("cause", c.String()).Msg("njoin: outer done")
	if e.shuttingDown {
		e.checkTerminate()
		return
	}
	if !c.IsEnd() {
		e.fatal(c)
		return
	}
	if e.openCount == 0 {
		e.finish(cause.End)
	}
}

func (e *Engine[A]) startInner(p stream.Stream[A]) {
	e.openCount++
	id := e.nextID
	e.nextID++
	e.running.Store(id, struct{}{})
	e.log.Debug().Int64("inner", id).Msg("njoin: inner started")
	e.trace.Emit("njoin", "inner_started", "", id, "", "")
	e.strategy.Run(func() {
		c := e.runInner(p)
		e.mailbox.Post(msgFinished{id: id, cause: c})
	})
}

// runInner drains p into the output queue, racing every suspension against
// the done broadcast signal so that a Kill propagates to the inner without
// the engine holding a per-inner interrupt handle (spec.md §4.3.4). This is
// a direct select against done's version-gated Wait, not a composition
// through the wye merge engine.
func (e *Engine[A]) runInner(p stream.Stream[A]) cause.Cause {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.watchDone(ctx, cancel)

	for {
		select {
		case <-ctx.Done():
			return stream.Run(p, func([]A) cause.Cause { return cause.KillCause })
		default:
		}
		step := p()
		if step.IsHalt() {
			return step.Cause()
		}
		for _, v := range step.Chunk() {
			if err := e.queue.Enqueue(ctx, v); err != nil {
				return stream.Run(step.Next(cause.KillCause), func([]A) cause.Cause { return cause.KillCause })
			}
		}
		p = step.Next(cause.End)
	}
}

func (e *Engine[A]) watchDone(ctx context.Context, cancel context.CancelFunc) {
	var last uint64
	for {
		_, ver, _, failed, err := e.done.Wait(ctx, last)
		if err != nil {
			return
		}
		if failed {
			cancel()
			return
		}
		last = ver
		v, _, _ := e.done.Get()
		if v {
			cancel()
			return
		}
	}
}

func (e *Engine[A]) onFinished(id int64, c cause.Cause) {
	e.openCount--
	e.running.Delete(id)
	e.log.Debug().Int64("inner", id).Str("cause", c.String()).Msg("njoin: inner finished")
	e.trace.Emit("njoin", "inner_finished", "", id, c.String(), errString(c))

	if c.IsError() {
		e.fatal(c)
	}
	if e.shuttingDown {
		e.checkTerminate()
		return
	}
	e.ensureOuter()
	if e.outer.kind == outerDone && e.outer.cause.IsEnd() && e.openCount == 0 {
		e.finish(cause.End)
	}
}

func (e *Engine[A]) dispatchDrainOuter(cont func(cause.Cause) stream.Stream[stream.Stream[A]]) {
	e.strategy.Run(func() {
		stream.Run(cont(cause.KillCause), func([]stream.Stream[A]) cause.Cause { return cause.KillCause })
		e.mailbox.Post(msgFinishedSource{cause: cause.KillCause})
	})
}

func (e *Engine[A]) killOuter() {
	switch e.outer.kind {
	case outerDone:
		return
	case outerRunning:
		e.outer.killPending = true
	case outerIdle:
		cont := e.outer.cont
		e.outer.pending = nil
		e.outer.kind = outerRunning
		e.dispatchDrainOuter(cont)
	}
}

// fatal handles a fatal cause: an inner's Error, a non-End FinishedSource,
// or the downstream consumer giving up (spec.md §4.3.5).
func (e *Engine[A]) fatal(c cause.Cause) {
	if e.shuttingDown {
		return
	}
	e.shuttingDown = true
	e.finalCause = c
	e.log.Debug().Str("cause", c.String()).Msg("njoin: shutting down")
	e.done.FailWithCause(c)
	e.queue.FailWithCause(c)
	e.killOuter()
	e.checkTerminate()
}

func (e *Engine[A]) finish(c cause.Cause) {
	if e.terminated {
		return
	}
	e.terminated = true
	e.finalCause = c
	e.queue.FailWithCause(c)
	e.log.Debug().Str("cause", c.String()).Msg("njoin: terminated")
	e.trace.Emit("njoin", "terminated", "", -1, c.String(), errString(c))
	e.mailbox.Close()
}

func (e *Engine[A]) checkTerminate() {
	if e.terminated {
		return
	}
	if !e.shuttingDown {
		return
	}
	if e.openCount != 0 || e.outer.kind != outerDone {
		return
	}
	e.finish(e.finalCause)
}
