package njoin

import (
	"context"

	"github.com/bgpfix/streamwye/future"
)

// Stats is a point-in-time snapshot of an Engine's concurrency state.
type Stats struct {
	OpenCount   int
	QueuedCount int
	OuterDone   bool
}

type msgStats struct {
	reply *future.Future[Stats]
}

// Stats returns a snapshot of current concurrency state, computed on the
// engine's own mailbox goroutine so it never races the fields it reads.
// Once the engine has terminated, the mailbox drops further posts, so
// Stats reports the final snapshot (nothing open, outer done, and the
// number of elements still buffered but not yet dequeued) directly rather
// than posting into a mailbox that will never reply.
func (e *Engine[A]) Stats() Stats {
	reply := future.New[Stats]()
	if !e.mailbox.Post(msgStats{reply: reply}) {
		return Stats{QueuedCount: e.queue.Len(), OuterDone: true}
	}
	v, err := reply.Wait(context.Background())
	if err != nil {
		return Stats{}
	}
	return v
}

func (e *Engine[A]) onStats(msg msgStats) {
	msg.reply.Resolve(Stats{
		OpenCount:   e.openCount,
		QueuedCount: e.queue.Len(),
		OuterDone:   e.outer.kind == outerDone,
	})
}

// Inspect lists the ids of currently running inner streams. Unlike Stats,
// it reads the registry directly: xsync.MapOf is safe for concurrent
// access, so this does not need a mailbox round trip.
func (e *Engine[A]) Inspect() []int64 {
	var ids []int64
	e.running.Range(func(id int64, _ struct{}) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}
