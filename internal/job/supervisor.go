package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sheetsight/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Runner drives one analysis run end to end. It appends translated
// progress events through the Sink and reports how the run ended.
// Implementations live in internal/agent; the supervisor only sees the
// canonical event vocabulary.
type Runner interface {
	Run(ctx context.Context, rec *Record, sink Sink) (Result, error)
}

// Result is the outcome of a runner that finished without a fatal
// engine error. Status is StatusCompleted when the expected artifact
// was produced, StatusPartial when the stream ended without one.
type Result struct {
	Status    store.JobStatus
	ResultRef string
}

// Sink is the append primitive handed to runners. Runners never write
// the job store directly; this keeps the single-writer invariant in
// one place.
type Sink interface {
	AppendEvent(jobID string, kind store.EventKind, payload any) error
	SetProgress(jobID, message string)
}

// Notification describes a finished job for the notification dispatcher.
// Message carries the final progress message; for errored jobs it is the
// diagnostic shown to the user.
type Notification struct {
	JobID     string
	OwnerID   string
	Email     string
	Filename  string
	Status    store.JobStatus
	ResultRef string
	Message   string
}

// Notifier dispatches completion notifications. Dispatch is
// fire-and-forget: a failed send never alters job status.
type Notifier interface {
	AnalysisComplete(ctx context.Context, n Notification) error
}

// SupervisorConfig tunes the snapshot cadence.
type SupervisorConfig struct {
	// SnapshotEvery is the number of appended events between snapshot
	// writes. Snapshots are also taken on every status transition.
	// Batching bounds write amplification on chatty runs.
	SnapshotEvery int
}

const defaultSnapshotEvery = 10

// Supervisor orchestrates job lifecycles: it creates records, launches
// runners on background goroutines, snapshots progress to the durable
// store, finalizes status, and serves status reads.
type Supervisor struct {
	jobs     *Store
	db       store.SnapshotStore
	runner   Runner
	notifier Notifier
	log      *slog.Logger

	snapshotEvery int

	mu      sync.Mutex
	handles map[string]context.CancelFunc

	eventsAppended metric.Int64Counter
	snapshotFails  metric.Int64Counter
}

// NewSupervisor wires the supervisor. db may not be nil; guest jobs are
// skipped at snapshot time instead.
func NewSupervisor(jobs *Store, db store.SnapshotStore, runner Runner, notifier Notifier, log *slog.Logger, cfg SupervisorConfig) *Supervisor {
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = defaultSnapshotEvery
	}

	s := &Supervisor{
		jobs:          jobs,
		db:            db,
		runner:        runner,
		notifier:      notifier,
		log:           log,
		snapshotEvery: cfg.SnapshotEvery,
		handles:       make(map[string]context.CancelFunc),
	}

	meter := otel.Meter("sheetsight/job")
	var err error
	s.eventsAppended, err = meter.Int64Counter("sheetsight.events.appended",
		metric.WithDescription("Progress events appended across all jobs"))
	if err != nil {
		log.Warn("failed to register events counter", "error", err)
	}
	s.snapshotFails, err = meter.Int64Counter("sheetsight.snapshot.failures",
		metric.WithDescription("Snapshot writes that failed and were deferred to the next cadence tick"))
	if err != nil {
		log.Warn("failed to register snapshot failure counter", "error", err)
	}

	return s
}

// CreateParams are the inputs for a new job.
type CreateParams struct {
	OwnerID    string
	Input      store.InputRef
	Mode       store.JobMode
	Refinement *store.RefinementContext
	Notify     store.NotificationPrefs
}

// Create allocates a job id, inserts a pending record, and launches the
// runner on its own goroutine. It returns immediately; the analysis
// runs for minutes in the background.
func (s *Supervisor) Create(ctx context.Context, p CreateParams) (string, error) {
	if p.OwnerID == "" {
		p.OwnerID = GuestOwner
	}
	if p.Mode == "" {
		p.Mode = store.ModeAnalysis
	}

	id := NewJobID()
	rec := NewRecord(id, p.OwnerID, p.Mode, p.Input, p.Refinement, p.Notify)
	rec.SetProgress("Starting analysis...")

	if err := s.jobs.Insert(rec); err != nil {
		return "", fmt.Errorf("insert job %s: %w", id, err)
	}
	s.snapshot(ctx, rec)

	// The run outlives the HTTP request that created it, so it gets its
	// own context. The cancel handle enables cooperative cancellation.
	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.handles[id] = cancel
	s.mu.Unlock()

	go s.run(runCtx, rec)

	s.log.Info("job created",
		"job_id", id, "owner_id", p.OwnerID, "mode", p.Mode, "file", p.Input.Filename)
	return id, nil
}

// run executes one job lifecycle on a background goroutine. Errors and
// panics from the runner are converted into a terminal error status;
// they never escape and never affect other jobs.
func (s *Supervisor) run(ctx context.Context, rec *Record) {
	defer s.releaseHandle(rec.ID())
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("runner panicked", "job_id", rec.ID(), "panic", p)
			s.fail(rec, fmt.Errorf("runner panic: %v", p))
		}
	}()

	if err := rec.Start(); err != nil {
		s.log.Error("cannot start job", "job_id", rec.ID(), "error", err)
		return
	}
	rec.SetProgress("The agent is analyzing your data...")
	s.snapshot(ctx, rec)

	res, err := s.runner.Run(ctx, rec, s)
	if err != nil {
		s.fail(rec, err)
		return
	}

	status := res.Status
	message := "Analysis complete!"
	if status != store.StatusCompleted {
		// Graceful degradation: the stream ended cleanly but the
		// expected artifact never showed up.
		status = store.StatusPartial
		message = "Analysis finished without producing a dashboard"
	}

	if err := s.AppendEvent(rec.ID(), store.KindLifecycleEnd, map[string]string{"result_ref": res.ResultRef}); err != nil {
		s.log.Warn("failed to append lifecycle-end event", "job_id", rec.ID(), "error", err)
	}
	if err := rec.Finalize(status, res.ResultRef, message); err != nil {
		s.log.Error("failed to finalize job", "job_id", rec.ID(), "error", err)
		return
	}
	s.snapshot(ctx, rec)
	s.log.Info("job finished", "job_id", rec.ID(), "status", status, "result_ref", res.ResultRef)
	s.dispatchNotification(rec)
}

// fail records a terminal error: an error event with the diagnostic
// payload, status=error, and a final snapshot. The full event history
// stays readable so the user sees how far the analysis got.
func (s *Supervisor) fail(rec *Record, cause error) {
	if _, err := rec.AppendEvent(store.KindError, map[string]string{"message": cause.Error()}); err != nil {
		s.log.Warn("failed to append error event", "job_id", rec.ID(), "error", err)
	}
	if err := rec.Finalize(store.StatusError, "", "Error: "+cause.Error()); err != nil {
		s.log.Error("failed to finalize errored job", "job_id", rec.ID(), "error", err)
		return
	}
	s.snapshot(context.Background(), rec)
	s.log.Error("job failed", "job_id", rec.ID(), "error", cause)
	// Errors notify too: the user asked to hear when the run finished,
	// not only when it succeeded.
	s.dispatchNotification(rec)
}

// AppendEvent implements Sink. Every SnapshotEvery appends it also
// triggers a snapshot write.
func (s *Supervisor) AppendEvent(jobID string, kind store.EventKind, payload any) error {
	rec, ok := s.jobs.Get(jobID)
	if !ok {
		return ErrNotFound
	}
	if _, err := rec.AppendEvent(kind, payload); err != nil {
		return err
	}
	if s.eventsAppended != nil {
		s.eventsAppended.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("kind", string(kind))))
	}
	if rec.unsavedEvents() >= s.snapshotEvery {
		s.snapshot(context.Background(), rec)
	}
	return nil
}

// SetProgress implements Sink.
func (s *Supervisor) SetProgress(jobID, message string) {
	if rec, ok := s.jobs.Get(jobID); ok {
		rec.SetProgress(message)
	}
}

// snapshot writes the record's durable copy. Guest jobs are never
// persisted. A failed write is logged and retried on the next cadence
// tick; it must not block or fail the in-progress analysis.
func (s *Supervisor) snapshot(ctx context.Context, rec *Record) {
	if rec.Guest() {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.db.SaveSnapshot(saveCtx, rec.Snapshot()); err != nil {
		if s.snapshotFails != nil {
			s.snapshotFails.Add(context.Background(), 1)
		}
		s.log.Warn("snapshot write failed, will retry on next cadence",
			"job_id", rec.ID(), "error", err)
		return
	}
	rec.noteSaved()
}

// Status returns a point-in-time view of the job: status, progress
// message, events after `since`, and the result ref if present. It
// falls back to the durable store for jobs not live in memory, and
// fails with ErrNotFound when both miss.
func (s *Supervisor) Status(ctx context.Context, jobID string, since int) (View, error) {
	if rec, ok := s.jobs.Get(jobID); ok {
		return rec.View(since), nil
	}
	snap, err := s.db.LoadSnapshot(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return View{}, ErrNotFound
		}
		return View{}, fmt.Errorf("load snapshot for %s: %w", jobID, err)
	}
	return viewFromSnapshot(snap, since), nil
}

// lookup returns the job's current serialized state from memory or the
// durable store. Used by the refinement coordinator.
func (s *Supervisor) lookup(ctx context.Context, jobID string) (*store.JobSnapshot, error) {
	if rec, ok := s.jobs.Get(jobID); ok {
		return rec.Snapshot(), nil
	}
	snap, err := s.db.LoadSnapshot(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load snapshot for %s: %w", jobID, err)
	}
	return snap, nil
}

// ListActive returns all non-terminal job ids for the owner. Clients
// reconnecting after a browser close use this to find their runs.
func (s *Supervisor) ListActive(ownerID string) []string {
	if ownerID == "" {
		ownerID = GuestOwner
	}
	return s.jobs.ListActive(ownerID)
}

// ActiveCount reports the number of non-terminal jobs, for metrics.
func (s *Supervisor) ActiveCount() int {
	return s.jobs.ActiveCount()
}

// Cancel requests cooperative cancellation of a running job. The
// runner notices between event reads, so cancellation is not
// immediate. Terminal jobs return ErrInvalidState; unknown ids
// ErrNotFound. Restored jobs have no runner to cancel.
func (s *Supervisor) Cancel(jobID string) error {
	rec, ok := s.jobs.Get(jobID)
	if !ok {
		return ErrNotFound
	}
	if rec.Status().Terminal() {
		return fmt.Errorf("job %s already finished: %w", jobID, ErrInvalidState)
	}
	s.mu.Lock()
	cancel, ok := s.handles[jobID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s has no live runner: %w", jobID, ErrInvalidState)
	}
	cancel()
	s.log.Info("cancellation requested", "job_id", jobID)
	return nil
}

func (s *Supervisor) releaseHandle(jobID string) {
	s.mu.Lock()
	if cancel, ok := s.handles[jobID]; ok {
		cancel()
		delete(s.handles, jobID)
	}
	s.mu.Unlock()
}

// dispatchNotification fires the completion notification when the job
// asked for one. Failures are logged and dropped.
func (s *Supervisor) dispatchNotification(rec *Record) {
	prefs := rec.NotifyPrefs()
	if prefs.Email == "" || s.notifier == nil {
		return
	}
	view := rec.View(0)
	n := Notification{
		JobID:     rec.ID(),
		OwnerID:   rec.OwnerID(),
		Email:     prefs.Email,
		Filename:  rec.Input().Filename,
		Status:    view.Status,
		ResultRef: view.ResultRef,
		Message:   view.Message,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.notifier.AnalysisComplete(ctx, n); err != nil {
			s.log.Warn("completion notification failed", "job_id", n.JobID, "error", err)
		}
	}()
}
