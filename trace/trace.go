// Package trace implements a minimal NDJSON lifecycle trace for the wye
// and njoin engines: one JSON object per line, hand-encoded with the same
// manual byte-builder style as json/json.go, decoded back with jsonparser
// for whitebox tests that want to assert on emitted events without
// depending on zerolog's own (human-oriented) field layout.
package trace

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	jsp "github.com/buger/jsonparser"
)

// ErrValue is returned by Decode when a line is not a well-formed Event.
var ErrValue = errors.New("trace: invalid value")

// Event is one lifecycle event: an engine starting, a side/inner reaching
// a terminal state, or the whole engine terminating. Engine and Side are
// short static strings ("wye", "njoin", "left", "right", "outer", "inner");
// ID is the inner-stream id for njoin events, -1 when not applicable.
type Event struct {
	Seq    uint64
	Engine string
	Kind   string
	Side   string
	ID     int64
	Cause  string
	Err    string
}

// Encode appends the NDJSON encoding of e (including trailing newline) to dst.
func Encode(dst []byte, e Event) []byte {
	dst = append(dst, '{')
	dst = append(dst, `"seq":`...)
	dst = strconv.AppendUint(dst, e.Seq, 10)
	dst = append(dst, `,"engine":"`...)
	dst = append(dst, e.Engine...)
	dst = append(dst, `","kind":"`...)
	dst = append(dst, e.Kind...)
	dst = append(dst, '"')
	if e.Side != "" {
		dst = append(dst, `,"side":"`...)
		dst = append(dst, e.Side...)
		dst = append(dst, '"')
	}
	if e.ID >= 0 {
		dst = append(dst, `,"id":`...)
		dst = strconv.AppendInt(dst, e.ID, 10)
	}
	if e.Cause != "" {
		dst = append(dst, `,"cause":"`...)
		dst = append(dst, e.Cause...)
		dst = append(dst, '"')
	}
	if e.Err != "" {
		dst = append(dst, `,"err":"`...)
		dst = append(dst, escape(e.Err)...)
		dst = append(dst, '"')
	}
	dst = append(dst, '}', '\n')
	return dst
}

// escape replaces the two bytes that would break a naive quoted JSON
// string (quote and backslash); cause/error strings in this module never
// contain control characters, so that's the whole alphabet worth guarding.
func escape(s string) string {
	if !bytes.ContainsAny([]byte(s), `"\`) {
		return s
	}
	var out []byte
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// Decode parses one NDJSON line (without requiring the trailing newline)
// back into an Event.
func Decode(line []byte) (Event, error) {
	e := Event{ID: -1}

	seq, err := jsp.GetInt(line, "seq")
	if err != nil {
		return e, ErrValue
	}
	e.Seq = uint64(seq)

	engine, err := jsp.GetString(line, "engine")
	if err != nil {
		return e, ErrValue
	}
	e.Engine = engine

	kind, err := jsp.GetString(line, "kind")
	if err != nil {
		return e, ErrValue
	}
	e.Kind = kind

	if side, err := jsp.GetString(line, "side"); err == nil {
		e.Side = side
	}
	if id, err := jsp.GetInt(line, "id"); err == nil {
		e.ID = id
	}
	if c, err := jsp.GetString(line, "cause"); err == nil {
		e.Cause = c
	}
	if es, err := jsp.GetString(line, "err"); err == nil {
		e.Err = es
	}
	return e, nil
}

// Sink is a thread-safe NDJSON writer shared by every goroutine an engine
// dispatches work onto. A nil *Sink is valid and Emit on it is a no-op, so
// engines can hold a possibly-nil Sink field without a presence check at
// every call site.
type Sink struct {
	mu  sync.Mutex
	w   io.Writer
	seq atomic.Uint64
}

// NewSink wraps w as an Event sink.
func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

// Emit encodes and writes one event, assigning it the next sequence
// number. Safe for concurrent use; a write error is swallowed, matching
// the "tracing never perturbs the traced computation" invariant.
func (s *Sink) Emit(engine, kind, side string, id int64, c, errStr string) {
	if s == nil {
		return
	}
	ev := Event{
		Seq:    s.seq.Add(1),
		Engine: engine,
		Kind:   kind,
		Side:   side,
		ID:     id,
		Cause:  c,
		Err:    errStr,
	}
	buf := Encode(make([]byte, 0, 128), ev)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(buf)
}
