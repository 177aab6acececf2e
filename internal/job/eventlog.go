package job

import (
	"encoding/json"
	"sync"
	"time"

	"sheetsight/internal/store"
)

// EventLog is an append-only, ordered sequence of progress events bound
// to one job. Sequence numbers start at 1 and have no gaps. There is no
// deletion operation.
//
// Append is called by the single runner goroutine bound to the job;
// Snapshot and Since are safe for concurrent readers.
type EventLog struct {
	mu     sync.RWMutex
	events []store.ProgressEvent
}

// NewEventLog returns an empty log.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// NewEventLogFrom rebuilds a log from persisted events.
func NewEventLogFrom(events []store.ProgressEvent) *EventLog {
	l := &EventLog{events: make([]store.ProgressEvent, len(events))}
	copy(l.events, events)
	return l
}

// Append assigns the next sequence number and adds the event to the tail.
func (l *EventLog) Append(kind store.EventKind, payload json.RawMessage) store.ProgressEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	ev := store.ProgressEvent{
		Sequence:  len(l.events) + 1,
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Payload:   payload,
	}
	l.events = append(l.events, ev)
	return ev
}

// Snapshot returns a copy of the full event sequence.
func (l *EventLog) Snapshot() []store.ProgressEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]store.ProgressEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Since returns a copy of the events with sequence numbers greater than
// seq. Pass 0 for the full history. Clients use this for incremental
// polling to keep payloads small.
func (l *EventLog) Since(seq int) []store.ProgressEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq < 0 {
		seq = 0
	}
	if seq > len(l.events) {
		seq = len(l.events)
	}
	out := make([]store.ProgressEvent, len(l.events)-seq)
	copy(out, l.events[seq:])
	return out
}

// Len returns the number of events appended so far.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// LastTimestamp returns the timestamp of the newest event, if any.
func (l *EventLog) LastTimestamp() (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.events) == 0 {
		return time.Time{}, false
	}
	return l.events[len(l.events)-1].Timestamp, true
}
