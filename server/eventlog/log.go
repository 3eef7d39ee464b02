// Package eventlog provides the per-session append-only event sequence with
// in-process fan-out and a durable, replayable tail for turn-boundary
// events.
package eventlog

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultRingCap bounds the per-session in-process ring buffer.
const DefaultRingCap = 1000

// Record is one wire-ready entry of a session's event sequence.
type Record struct {
	// Seq is the monotonic per-session index. Indices are never reused;
	// dropped ring entries leave the numbering intact.
	Seq  int64
	Data []byte
}

// Listener receives records synchronously as they are emitted.
type Listener func(Record)

type ring struct {
	// base is the durable log length at ring creation. Indices below it
	// were never held locally and map one-to-one onto durable entries.
	base    int64
	nextSeq int64
	entries []Record
}

// Log is the per-session event log. There is effectively one writer (the
// orchestrator) per session; readers are unbounded and independent.
type Log struct {
	mu        sync.Mutex
	rings     map[string]*ring
	listeners map[string]map[int64]Listener
	nextLID   int64

	durable DurableLog
	cap     int
}

// New creates a Log with the given durable backend. A nil durable backend
// falls back to in-memory durability (single-instance operation).
func New(durable DurableLog) *Log {
	if durable == nil {
		durable = NewMemoryDurableLog()
	}
	return &Log{
		rings:     make(map[string]*ring),
		listeners: make(map[string]map[int64]Listener),
		durable:   durable,
		cap:       DefaultRingCap,
	}
}

// Emit assigns the next sequence index, appends to the bounded ring,
// synchronously fans out to in-process listeners, and pushes turn-boundary
// events to the durable log. Durable append failures are logged and
// swallowed: event delivery is best-effort and must never abort a turn.
func (l *Log) Emit(ctx context.Context, sessionID string, event Event) {
	data, err := Encode(event)
	if err != nil {
		slog.Error("failed to encode event", "session_id", sessionID, "error", err)
		return
	}

	r := l.sessionRing(ctx, sessionID)

	l.mu.Lock()
	record := Record{Seq: r.nextSeq, Data: data}
	r.nextSeq++
	r.entries = append(r.entries, record)
	if len(r.entries) > l.cap {
		r.entries = r.entries[len(r.entries)-l.cap:]
	}
	var fns []Listener
	for _, fn := range l.listeners[sessionID] {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(record)
	}

	if isBoundary(event.EventKind()) {
		if err := l.durable.Append(ctx, sessionID, data); err != nil {
			slog.Warn("failed to append event to durable log",
				"session_id", sessionID, "kind", event.EventKind(), "error", err)
		}
	}
}

// sessionRing returns the session's ring, creating it on first use. A new
// ring continues the sequence from the durable log length instead of
// restarting at zero, so an offset a reader recorded against the durable
// log stays valid once this process starts emitting.
func (l *Log) sessionRing(ctx context.Context, sessionID string) *ring {
	l.mu.Lock()
	r := l.rings[sessionID]
	l.mu.Unlock()
	if r != nil {
		return r
	}

	base, err := l.durable.Length(ctx, sessionID)
	if err != nil {
		slog.Warn("failed to read durable log length; sequencing from zero",
			"session_id", sessionID, "error", err)
		base = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if r = l.rings[sessionID]; r == nil {
		r = &ring{base: base, nextSeq: base}
		l.rings[sessionID] = r
	}
	return r
}

// Subscribe registers an in-process listener for minimum-latency local
// delivery. The returned cancel func removes it.
func (l *Log) Subscribe(sessionID string, fn Listener) (cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	set := l.listeners[sessionID]
	if set == nil {
		set = make(map[int64]Listener)
		l.listeners[sessionID] = set
	}
	id := l.nextLID
	l.nextLID++
	set[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if set, ok := l.listeners[sessionID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(l.listeners, sessionID)
			}
		}
	}
}

// Length returns the next sequence index for the session. Rings continue
// the durable numbering, so the value never shrinks when a fresh process
// starts emitting on a session that already has a durable tail.
func (l *Log) Length(ctx context.Context, sessionID string) (int64, error) {
	l.mu.Lock()
	r := l.rings[sessionID]
	l.mu.Unlock()
	if r != nil {
		return r.nextSeq, nil
	}
	return l.durable.Length(ctx, sessionID)
}

// From returns entries with sequence index >= index, in order. Indices the
// local ring never held are served from the durable log.
func (l *Log) From(ctx context.Context, sessionID string, index int64) ([]Record, error) {
	l.mu.Lock()
	r := l.rings[sessionID]
	if r == nil {
		l.mu.Unlock()
		items, err := l.durable.From(ctx, sessionID, index)
		if err != nil {
			return nil, err
		}
		records := make([]Record, len(items))
		for i, data := range items {
			records[i] = Record{Seq: index + int64(i), Data: data}
		}
		return records, nil
	}

	base := r.base
	var local []Record
	for _, rec := range r.entries {
		if rec.Seq >= index {
			local = append(local, rec)
		}
	}
	l.mu.Unlock()

	if index >= base {
		return local, nil
	}

	items, err := l.durable.From(ctx, sessionID, index)
	if err != nil {
		slog.Warn("failed to replay durable prefix",
			"session_id", sessionID, "error", err)
		return local, nil
	}
	if n := base - index; int64(len(items)) > n {
		items = items[:n]
	}
	records := make([]Record, 0, len(items)+len(local))
	for i, data := range items {
		records = append(records, Record{Seq: index + int64(i), Data: data})
	}
	return append(records, local...), nil
}

func (l *Log) Close() error {
	return l.durable.Close()
}
