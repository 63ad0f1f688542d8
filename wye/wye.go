package wye

import (
	"context"
	"errors"

	"github.com/bgpfix/streamwye/cause"
	"github.com/bgpfix/streamwye/future"
	"github.com/bgpfix/streamwye/internal/mailbox"
	"github.com/bgpfix/streamwye/strategy"
	"github.com/bgpfix/streamwye/stream"
	"github.com/bgpfix/streamwye/trace"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

// ErrClosed is the sentinel error for an Engine that has already
// terminated. No function in this package returns it: a pull after
// termination reports the Engine's terminal Cause instead.
var ErrClosed = errors.New("wye: closed")

// DefaultOptions mirrors the teacher's package-level default: logging on
// by default, pointed at the global logger.
var DefaultOptions = Options{Logger: &log.Logger}

// Options configures a Wye engine.
type Options struct {
	Logger *zerolog.Logger // if nil, logging is disabled
	Trace  *trace.Sink     // if nil, no lifecycle trace is emitted
}

// ApplyMap loosely applies config from an untyped map, using cast to
// coerce values (e.g. values decoded from JSON/YAML/env vars).
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

// errString renders c's wrapped error, or "" for End/Kill.
func errString(c cause.Cause) string {
	if c.IsError() {
		return c.Err().Error()
	}
	return ""
}

type sideKind uint8

const (
	sideIdle sideKind = iota
	sideRunning
	sideDone
)

type leftSlot[L any] struct {
	kind        sideKind
	cont        func(cause.Cause) stream.Stream[L]
	pending     []L
	cause       cause.Cause
	killPending bool
}

type rightSlot[R any] struct {
	kind        sideKind
	cont        func(cause.Cause) stream.Stream[R]
	pending     []R
	cause       cause.Cause
	killPending bool
}

type msgStart struct{}

type msgReadyL[L any] struct{ step stream.Step[L] }
type msgReadyR[R any] struct{ step stream.Step[R] }

type getResult[O any] struct {
	chunk  []O
	halt   cause.Cause
	isHalt bool
}

type msgGet[O any] struct{ reply *future.Future[getResult[O]] }
type msgDownDone struct{ reply *future.Future[struct{}] }

// Engine drives a merge Program over two sources, serialized through a
// single mailbox (spec.md §4.1, §4.2).
type Engine[L, R, O any] struct {
	mailbox  *mailbox.Mailbox[any]
	strategy strategy.Strategy
	log      zerolog.Logger
	trace    *trace.Sink

	progStep Step[L, R, O]
	leftBias bool

	left  leftSlot[L]
	right rightSlot[R]

	pendingGet      *future.Future[getResult[O]]
	pendingDownDone *future.Future[struct{}]

	haltRequested bool
	haltCause     cause.Cause
	downDone      bool

	terminated bool
	finalCause cause.Cause
}

// Wye merges pl and pr through program, driven by strat, per spec.md §6's
// wye(pl, pr, program, strategy) -> stream<O>.
func Wye[L, R, O any](pl stream.Stream[L], pr stream.Stream[R], program Program[L, R, O], strat strategy.Strategy, opts ...Options) stream.Stream[O] {
	o := DefaultOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	lg := zerolog.Nop()
	if o.Logger != nil {
		lg = *o.Logger
	}

	e := &Engine[L, R, O]{
		mailbox:  mailbox.New[any](),
		strategy: strat,
		log:      lg,
		trace:    o.Trace,
		progStep: program(),
	}
	e.left.kind = sideIdle
	e.left.cont = func(cause.Cause) stream.Stream[L] { return pl }
	e.right.kind = sideIdle
	e.right.cont = func(cause.Cause) stream.Stream[R] { return pr }

	e.trace.Emit("wye", "start", "", -1, "", "")
	go e.mailbox.Run(e.handle)
	e.mailbox.Post(msgStart{})

	return e.pull()
}

func (e *Engine[L, R, O]) pull() stream.Stream[O] {
	return func() stream.Step[O] {
		reply := future.New[getResult[O]]()
		e.mailbox.Post(msgGet[O]{reply: reply})
		res, _ := reply.Wait(context.Background())
		if res.isHalt {
			return stream.Halt[O](res.halt)
		}
		return stream.Emit(res.chunk, func(c cause.Cause) stream.Stream[O] {
			if c.IsEnd() {
				return e.pull()
			}
			dreply := future.New[struct{}]()
			e.mailbox.Post(msgDownDone{reply: dreply})
			dreply.Wait(context.Background())
			return stream.Empty[O]()
		})
	}
}

func (e *Engine[L, R, O]) handle(m any) {
	switch msg := m.(type) {
	case msgStart:
		e.interpret()
	case msgReadyL[L]:
		e.onReadyLeft(msg.step)
	case msgReadyR[R]:
		e.onReadyRight(msg.step)
	case msgGet[O]:
		if e.terminated {
			msg.reply.Resolve(getResult[O]{halt: e.finalCause, isHalt: true})
			return
		}
		e.pendingGet = msg.reply
		e.interpret()
	case msgDownDone:
		if e.terminated {
			msg.reply.Resolve(struct{}{})
			return
		}
		e.log.Debug().Msg("wye: downstream done")
		e.downDone = true
		e.pendingDownDone = msg.reply
		e.killLeft()
		e.killRight()
		e.checkTerminate()
	}
}

// interpret runs the §4.2.3 step-interpretation loop until it reaches a
// stopping point: a parked Emit, an Await with no immediate progress
// available, or termination.
func (e *Engine[L, R, O]) interpret() {
	for {
		if e.terminated {
			return
		}
		switch {
		case e.progStep.IsEmit():
			chunk := e.progStep.Chunk()
			if len(chunk) == 0 {
				e.progStep = e.progStep.Next(cause.End)()
				continue
			}
			if e.pendingGet != nil {
				g := e.pendingGet
				e.pendingGet = nil
				e.progStep = e.progStep.Next(cause.End)()
				g.Resolve(getResult[O]{chunk: chunk})
				continue
			}
			return
		case e.progStep.IsAwaitL():
			if e.driveLeft() {
				continue
			}
			return
		case e.progStep.IsAwaitR():
			if e.driveRight() {
				continue
			}
			return
		case e.progStep.IsAwaitBoth():
			var progressed bool
			if e.leftBias {
				progressed = e.driveLeft()
				if !progressed {
					progressed = e.driveRight()
				}
			} else {
				progressed = e.driveRight()
				if !progressed {
					progressed = e.driveLeft()
				}
			}
			if progressed {
				e.leftBias = !e.leftBias
				continue
			}
			return
		case e.progStep.IsHalt():
			e.haltRequested = true
			e.haltCause = e.progStep.Cause()
			e.log.Debug().Msg("wye: program halted")
			e.killLeft()
			e.killRight()
			e.checkTerminate()
			return
		}
	}
}

// driveLeft tries to make immediate progress on a pending AwaitL/AwaitBoth
// requirement using buffered or already-terminated left state, dispatching
// a fetch if neither is available. Returns true if progStep advanced.
func (e *Engine[L, R, O]) driveLeft() bool {
	switch e.left.kind {
	case sideDone:
		c := e.left.cause
		prog := DisconnectL[L, R, O](func() Step[L, R, O] { return e.progStep }, c)
		e.progStep = prog()
		return true
	case sideIdle:
		if len(e.left.pending) > 0 {
			v := e.left.pending[0]
			e.left.pending = e.left.pending[1:]
			prog := FeedL(e.progStep, v)
			e.progStep = prog()
			return true
		}
		e.runLeft()
		return false
	default: // sideRunning
		return false
	}
}

func (e *Engine[L, R, O]) driveRight() bool {
	switch e.right.kind {
	case sideDone:
		c := e.right.cause
		prog := DisconnectR[L, R, O](func() Step[L, R, O] { return e.progStep }, c)
		e.progStep = prog()
		return true
	case sideIdle:
		if len(e.right.pending) > 0 {
			v := e.right.pending[0]
			e.right.pending = e.right.pending[1:]
			prog := FeedR(e.progStep, v)
			e.progStep = prog()
			return true
		}
		e.runRight()
		return false
	default:
		return false
	}
}

func (e *Engine[L, R, O]) runLeft() {
	if e.left.kind != sideIdle {
		return
	}
	cont := e.left.cont
	e.left.kind = sideRunning
	e.log.Debug().Msg("wye: fetching left")
	e.strategy.Run(func() {
		step := cont(cause.End)()
		e.mailbox.Post(msgReadyL[L]{step: step})
	})
}

func (e *Engine[L, R, O]) runRight() {
	if e.right.kind != sideIdle {
		return
	}
	cont := e.right.cont
	e.right.kind = sideRunning
	e.log.Debug().Msg("wye: fetching right")
	e.strategy.Run(func() {
		step := cont(cause.End)()
		e.mailbox.Post(msgReadyR[R]{step: step})
	})
}

func (e *Engine[L, R, O]) killLeft() {
	switch e.left.kind {
	case sideDone:
		return
	case sideRunning:
		e.left.killPending = true
	case sideIdle:
		cont := e.left.cont
		e.left.kind = sideRunning
		e.left.pending = nil
		e.dispatchDrainLeft(cont)
	}
}

func (e *Engine[L, R, O]) killRight() {
	switch e.right.kind {
	case sideDone:
		return
	case sideRunning:
		e.right.killPending = true
	case sideIdle:
		cont := e.right.cont
		e.right.kind = sideRunning
		e.right.pending = nil
		e.dispatchDrainRight(cont)
	}
}

func (e *Engine[L, R, O]) dispatchDrainLeft(cont func(cause.Cause) stream.Stream[L]) {
	e.strategy.Run(func() {
		c := stream.Run(cont(cause.KillCause), func([]L) cause.Cause { return cause.KillCause })
		e.mailbox.Post(msgReadyL[L]{step: stream.Halt[L](c)})
	})
}

func (e *Engine[L, R, O]) dispatchDrainRight(cont func(cause.Cause) stream.Stream[R]) {
	e.strategy.Run(func() {
		c := stream.Run(cont(cause.KillCause), func([]R) cause.Cause { return cause.KillCause })
		e.mailbox.Post(msgReadyR[R]{step: stream.Halt[R](c)})
	})
}

func (e *Engine[L, R, O]) onReadyLeft(step stream.Step[L]) {
	killPending := e.left.killPending
	if step.IsHalt() {
		e.left.kind = sideDone
		e.left.cause = step.Cause()
		e.left.killPending = false
		e.log.Debug().Str("cause", step.Cause().String()).Msg("wye: left done")
		e.trace.Emit("wye", "side_done", "left", -1, step.Cause().String(), errString(step.Cause()))
		e.interpret()
		return
	}
	chunk := step.Chunk()
	next := step.Next
	if killPending {
		e.left.kind = sideRunning
		e.dispatchDrainLeft(next)
		return
	}
	e.left.kind = sideIdle
	e.left.cont = next
	e.left.pending = append(e.left.pending, chunk...)
	e.interpret()
}

func (e *Engine[L, R, O]) onReadyRight(step stream.Step[R]) {
	killPending := e.right.killPending
	if step.IsHalt() {
		e.right.kind = sideDone
		e.right.cause = step.Cause()
		e.right.killPending = false
		e.log.Debug().Str("cause", step.Cause().String()).Msg("wye: right done")
		e.trace.Emit("wye", "side_done", "right", -1, step.Cause().String(), errString(step.Cause()))
		e.interpret()
		return
	}
	chunk := step.Chunk()
	next := step.Next
	if killPending {
		e.right.kind = sideRunning
		e.dispatchDrainRight(next)
		return
	}
	e.right.kind = sideIdle
	e.right.cont = next
	e.right.pending = append(e.right.pending, chunk...)
	e.interpret()
}

func (e *Engine[L, R, O]) checkTerminate() {
	if e.terminated {
		return
	}
	if e.left.kind != sideDone || e.right.kind != sideDone {
		return
	}
	if !e.haltRequested && !e.downDone {
		return
	}
	c := cause.End
	if e.haltRequested {
		c = e.haltCause
	}
	if e.downDone {
		c = cause.CausedBy(c, cause.KillCause)
	}
	total := cause.CausedBy(c, cause.CausedBy(e.left.cause, e.right.cause))
	e.terminated = true
	e.finalCause = total
	e.log.Debug().Str("cause", total.String()).Msg("wye: terminated")
	e.trace.Emit("wye", "terminated", "", -1, total.String(), errString(total))
	if e.pendingGet != nil {
		g := e.pendingGet
		e.pendingGet = nil
		g.Resolve(getResult[O]{halt: total, isHalt: true})
	}
	if e.pendingDownDone != nil {
		d := e.pendingDownDone
		e.pendingDownDone = nil
		d.Resolve(struct{}{})
	}
	e.mailbox.Close()
}
