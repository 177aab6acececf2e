// Package job contains the core orchestration layer: the live job table,
// the per-job event log, the supervisor that drives background analysis
// runs, startup recovery, and the refinement flow.
package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"sheetsight/internal/store"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrNotFound means the job id is unknown to both the in-memory
	// table and the durable store.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidState means the operation is incompatible with the
	// job's current status.
	ErrInvalidState = errors.New("invalid job state")

	// ErrExists means a record with the same id is already live.
	ErrExists = errors.New("job already exists")
)

// GuestOwner is the sentinel owner id for anonymous jobs.
// Guest jobs live only in memory and are never persisted.
const GuestOwner = "guest"

// NewJobID returns a new sortable, time-based job id.
func NewJobID() string {
	return ulid.Make().String()
}

// Record is the live, in-memory state of one analysis job.
//
// Exactly one supervisor goroutine writes a record's status and events
// while it is running; any number of pollers read it concurrently.
type Record struct {
	id         string
	ownerID    string
	mode       store.JobMode
	input      store.InputRef
	refinement *store.RefinementContext
	notify     store.NotificationPrefs
	createdAt  time.Time

	log *EventLog

	mu          sync.Mutex
	status      store.JobStatus
	message     string
	resultRef   string
	finalizedAt *time.Time
	restored    bool
	unsaved     int // events appended since the last successful snapshot
}

// NewRecord creates a pending record. The id should come from NewJobID.
func NewRecord(id, ownerID string, mode store.JobMode, input store.InputRef, refinement *store.RefinementContext, notify store.NotificationPrefs) *Record {
	return &Record{
		id:         id,
		ownerID:    ownerID,
		mode:       mode,
		input:      input,
		refinement: refinement,
		notify:     notify,
		createdAt:  time.Now().UTC(),
		status:     store.StatusPending,
		log:        NewEventLog(),
	}
}

func (r *Record) ID() string                            { return r.id }
func (r *Record) OwnerID() string                       { return r.ownerID }
func (r *Record) Mode() store.JobMode                   { return r.mode }
func (r *Record) Input() store.InputRef                 { return r.input }
func (r *Record) Refinement() *store.RefinementContext  { return r.refinement }
func (r *Record) NotifyPrefs() store.NotificationPrefs  { return r.notify }
func (r *Record) CreatedAt() time.Time                  { return r.createdAt }

// Guest reports whether the record belongs to the anonymous owner.
func (r *Record) Guest() bool { return r.ownerID == GuestOwner }

// Status returns the current lifecycle state.
func (r *Record) Status() store.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Restored reports whether this record was reinstated from a snapshot
// after a restart. Restored records have no live runner attached.
func (r *Record) Restored() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.restored
}

// Start moves the record from pending to running.
func (r *Record) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != store.StatusPending {
		return fmt.Errorf("cannot start job in status %q: %w", r.status, ErrInvalidState)
	}
	r.status = store.StatusRunning
	return nil
}

// Finalize moves the record into a terminal status. Once terminal, a
// record never transitions again; a second Finalize is rejected.
func (r *Record) Finalize(status store.JobStatus, resultRef, message string) error {
	if !status.Terminal() {
		return fmt.Errorf("%q is not a terminal status: %w", status, ErrInvalidState)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return fmt.Errorf("job already finalized as %q: %w", r.status, ErrInvalidState)
	}
	now := time.Now().UTC()
	r.status = status
	r.resultRef = resultRef
	r.message = message
	r.finalizedAt = &now
	return nil
}

// SetProgress overwrites the human-readable progress message.
func (r *Record) SetProgress(message string) {
	r.mu.Lock()
	r.message = message
	r.mu.Unlock()
}

// AppendEvent marshals payload and appends a new event to the log.
// A nil payload produces an event with no payload.
func (r *Record) AppendEvent(kind store.EventKind, payload any) (store.ProgressEvent, error) {
	var raw json.RawMessage
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		raw = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return store.ProgressEvent{}, fmt.Errorf("marshal event payload: %w", err)
		}
		raw = b
	}
	ev := r.log.Append(kind, raw)
	r.mu.Lock()
	r.unsaved++
	r.mu.Unlock()
	return ev, nil
}

// noteSaved resets the unsaved-event counter after a successful snapshot.
func (r *Record) noteSaved() {
	r.mu.Lock()
	r.unsaved = 0
	r.mu.Unlock()
}

// unsavedEvents returns the number of appends since the last snapshot.
func (r *Record) unsavedEvents() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsaved
}

// lastActivity returns the timestamp of the newest event, or the
// creation time if no events exist. Used by staleness reconciliation.
func (r *Record) lastActivity() time.Time {
	if ts, ok := r.log.LastTimestamp(); ok {
		return ts
	}
	return r.createdAt
}

// View is a point-in-time read of a record for status responses.
type View struct {
	JobID       string
	OwnerID     string
	Status      store.JobStatus
	Message     string
	Filename    string
	Events      []store.ProgressEvent
	EventCount  int
	ResultRef   string
	CreatedAt   time.Time
	FinalizedAt *time.Time
}

// View returns the current state and the events after sequence number
// since. Pass since=0 for the full history. It never blocks on the
// runner; at worst a reader sees a slightly stale snapshot.
func (r *Record) View(since int) View {
	events := r.log.Since(since)
	total := r.log.Len()
	r.mu.Lock()
	defer r.mu.Unlock()
	return View{
		JobID:       r.id,
		OwnerID:     r.ownerID,
		Status:      r.status,
		Message:     r.message,
		Filename:    r.input.Filename,
		Events:      events,
		EventCount:  total,
		ResultRef:   r.resultRef,
		CreatedAt:   r.createdAt,
		FinalizedAt: r.finalizedAt,
	}
}

// Snapshot serializes the full record, including the complete event
// list, for the persistence adapter.
func (r *Record) Snapshot() *store.JobSnapshot {
	events := r.log.Snapshot()
	r.mu.Lock()
	defer r.mu.Unlock()
	return &store.JobSnapshot{
		JobID:       r.id,
		OwnerID:     r.ownerID,
		Mode:        r.mode,
		Status:      r.status,
		Message:     r.message,
		Input:       r.input,
		Refinement:  r.refinement,
		ResultRef:   r.resultRef,
		Notify:      r.notify,
		Events:      events,
		CreatedAt:   r.createdAt,
		FinalizedAt: r.finalizedAt,
	}
}

// FromSnapshot rebuilds a record from its durable copy, preserving the
// persisted status as-is. Replaying the same snapshot always yields the
// same record.
func FromSnapshot(snap *store.JobSnapshot) *Record {
	return &Record{
		id:          snap.JobID,
		ownerID:     snap.OwnerID,
		mode:        snap.Mode,
		input:       snap.Input,
		refinement:  snap.Refinement,
		notify:      snap.Notify,
		createdAt:   snap.CreatedAt,
		status:      snap.Status,
		message:     snap.Message,
		resultRef:   snap.ResultRef,
		finalizedAt: snap.FinalizedAt,
		log:         NewEventLogFrom(snap.Events),
	}
}

// viewFromSnapshot builds a status view for a job that is only known
// durably (e.g. a finalized job queried after a restart).
func viewFromSnapshot(snap *store.JobSnapshot, since int) View {
	events := snap.Events
	if since > 0 {
		i := 0
		for i < len(events) && events[i].Sequence <= since {
			i++
		}
		events = events[i:]
	}
	out := make([]store.ProgressEvent, len(events))
	copy(out, events)
	return View{
		JobID:       snap.JobID,
		OwnerID:     snap.OwnerID,
		Status:      snap.Status,
		Message:     snap.Message,
		Filename:    snap.Input.Filename,
		Events:      out,
		EventCount:  len(snap.Events),
		ResultRef:   snap.ResultRef,
		CreatedAt:   snap.CreatedAt,
		FinalizedAt: snap.FinalizedAt,
	}
}
