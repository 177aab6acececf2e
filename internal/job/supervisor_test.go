package job

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"sheetsight/internal/store"
)

// fakeDB is an in-memory SnapshotStore that records every write.
type fakeDB struct {
	mu      sync.Mutex
	saves   []*store.JobSnapshot
	byID    map[string]*store.JobSnapshot
	saveErr error
}

func newFakeDB() *fakeDB {
	return &fakeDB{byID: make(map[string]*store.JobSnapshot)}
}

func (f *fakeDB) SaveSnapshot(_ context.Context, snap *store.JobSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves = append(f.saves, snap)
	f.byID[snap.JobID] = snap
	return nil
}

func (f *fakeDB) LoadSnapshot(_ context.Context, jobID string) (*store.JobSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.byID[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return snap, nil
}

func (f *fakeDB) LoadActive(_ context.Context) ([]*store.JobSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.JobSnapshot
	for _, snap := range f.byID {
		if !snap.Status.Terminal() {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (f *fakeDB) ListRecent(_ context.Context, ownerID string, limit int) ([]*store.JobSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.JobSnapshot
	for _, snap := range f.byID {
		if snap.OwnerID == ownerID && len(out) < limit {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (f *fakeDB) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeDB) lastSave(jobID string) *store.JobSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[jobID]
}

// fakeRunner delegates to a function so each test scripts its own run.
type fakeRunner struct {
	run func(ctx context.Context, rec *Record, sink Sink) (Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, rec *Record, sink Sink) (Result, error) {
	return f.run(ctx, rec, sink)
}

// fakeNotifier records dispatched notifications.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []Notification
	done  chan struct{}
}

func (f *fakeNotifier) AnalysisComplete(_ context.Context, n Notification) error {
	f.mu.Lock()
	f.calls = append(f.calls, n)
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSupervisor(t *testing.T, db store.SnapshotStore, runner Runner, notifier Notifier, every int) *Supervisor {
	t.Helper()
	return NewSupervisor(NewStore(), db, runner, notifier, discardLogger(), SupervisorConfig{SnapshotEvery: every})
}

// waitForTerminal polls until the job reaches a terminal status.
func waitForTerminal(t *testing.T, s *Supervisor, jobID string) View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		view, err := s.Status(context.Background(), jobID, 0)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if view.Status.Terminal() {
			return view
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal status")
	return View{}
}

func TestSupervisor_SuccessfulRunProducesCompletedJob(t *testing.T) {
	db := newFakeDB()
	runner := &fakeRunner{run: func(_ context.Context, rec *Record, sink Sink) (Result, error) {
		for i := 0; i < 3; i++ {
			if err := sink.AppendEvent(rec.ID(), store.KindToolInvocation, map[string]string{"tool": "read_sheet"}); err != nil {
				return Result{}, err
			}
		}
		return Result{Status: store.StatusCompleted, ResultRef: "/out/dash.html"}, nil
	}}
	s := newTestSupervisor(t, db, runner, nil, 10)

	id, err := s.Create(context.Background(), CreateParams{
		OwnerID: "user-1",
		Input:   store.InputRef{FilePath: "/up/r.xlsx", Filename: "r.xlsx"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	view := waitForTerminal(t, s, id)
	if view.Status != store.StatusCompleted {
		t.Fatalf("status = %s, want completed", view.Status)
	}
	if view.ResultRef != "/out/dash.html" {
		t.Errorf("result ref = %q", view.ResultRef)
	}

	// 3 runner events plus the supervisor's lifecycle-end.
	if view.EventCount != 4 {
		t.Fatalf("event count = %d, want 4", view.EventCount)
	}
	if view.Events[3].Kind != store.KindLifecycleEnd {
		t.Errorf("last event kind = %s, want lifecycle-end", view.Events[3].Kind)
	}
	for i, ev := range view.Events {
		if ev.Sequence != i+1 {
			t.Errorf("event %d has sequence %d", i, ev.Sequence)
		}
	}

	// Final snapshot must carry the terminal state and full history.
	snap := db.lastSave(id)
	if snap == nil {
		t.Fatal("no snapshot persisted")
	}
	if snap.Status != store.StatusCompleted || len(snap.Events) != 4 {
		t.Errorf("persisted snapshot: status=%s events=%d", snap.Status, len(snap.Events))
	}
}

func TestSupervisor_RunnerErrorProducesErrorJob(t *testing.T) {
	db := newFakeDB()
	runner := &fakeRunner{run: func(_ context.Context, rec *Record, sink Sink) (Result, error) {
		sink.AppendEvent(rec.ID(), store.KindThought, map[string]string{"text": "reading"})
		return Result{}, errors.New("engine exploded")
	}}
	s := newTestSupervisor(t, db, runner, nil, 10)

	id, err := s.Create(context.Background(), CreateParams{
		OwnerID: "user-1",
		Input:   store.InputRef{Filename: "r.xlsx"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	view := waitForTerminal(t, s, id)
	if view.Status != store.StatusError {
		t.Fatalf("status = %s, want error", view.Status)
	}

	// The thought event plus the terminal error event, history preserved.
	if view.EventCount != 2 {
		t.Fatalf("event count = %d, want 2", view.EventCount)
	}
	if view.Events[0].Kind != store.KindThought || view.Events[1].Kind != store.KindError {
		t.Errorf("event kinds = %s, %s", view.Events[0].Kind, view.Events[1].Kind)
	}
	if view.Message != "Error: engine exploded" {
		t.Errorf("message = %q", view.Message)
	}
}

func TestSupervisor_PanicDoesNotEscape(t *testing.T) {
	db := newFakeDB()
	runner := &fakeRunner{run: func(_ context.Context, _ *Record, _ Sink) (Result, error) {
		panic("boom")
	}}
	s := newTestSupervisor(t, db, runner, nil, 10)

	id, err := s.Create(context.Background(), CreateParams{OwnerID: "user-1"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	view := waitForTerminal(t, s, id)
	if view.Status != store.StatusError {
		t.Errorf("status after panic = %s, want error", view.Status)
	}
}

func TestSupervisor_NonCompletedResultBecomesPartial(t *testing.T) {
	db := newFakeDB()
	runner := &fakeRunner{run: func(_ context.Context, _ *Record, _ Sink) (Result, error) {
		// Stream ended cleanly but no artifact was produced.
		return Result{Status: store.StatusPartial}, nil
	}}
	s := newTestSupervisor(t, db, runner, nil, 10)

	id, _ := s.Create(context.Background(), CreateParams{OwnerID: "user-1"})
	view := waitForTerminal(t, s, id)
	if view.Status != store.StatusPartial {
		t.Errorf("status = %s, want partial", view.Status)
	}
}

func TestSupervisor_GuestJobsAreNeverPersisted(t *testing.T) {
	db := newFakeDB()
	runner := &fakeRunner{run: func(_ context.Context, rec *Record, sink Sink) (Result, error) {
		for i := 0; i < 30; i++ {
			sink.AppendEvent(rec.ID(), store.KindThought, nil)
		}
		return Result{Status: store.StatusCompleted, ResultRef: "/out/d.html"}, nil
	}}
	s := newTestSupervisor(t, db, runner, nil, 5)

	// Empty owner defaults to guest.
	id, err := s.Create(context.Background(), CreateParams{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	view := waitForTerminal(t, s, id)
	if view.OwnerID != GuestOwner {
		t.Fatalf("owner = %q, want guest", view.OwnerID)
	}
	if db.saveCount() != 0 {
		t.Errorf("guest job produced %d snapshot writes, want 0", db.saveCount())
	}
}

func TestSupervisor_SnapshotCadence(t *testing.T) {
	db := newFakeDB()
	runner := &fakeRunner{run: func(_ context.Context, rec *Record, sink Sink) (Result, error) {
		for i := 0; i < 7; i++ {
			if err := sink.AppendEvent(rec.ID(), store.KindThought, nil); err != nil {
				return Result{}, err
			}
		}
		return Result{Status: store.StatusCompleted, ResultRef: "/out/d.html"}, nil
	}}
	s := newTestSupervisor(t, db, runner, nil, 3)

	id, _ := s.Create(context.Background(), CreateParams{OwnerID: "user-1"})
	waitForTerminal(t, s, id)

	// Creation, start, two cadence ticks (after events 3 and 6), final.
	if got := db.saveCount(); got < 5 {
		t.Errorf("snapshot writes = %d, want at least 5", got)
	}
}

func TestSupervisor_SnapshotFailureIsNotFatal(t *testing.T) {
	db := newFakeDB()
	db.saveErr = errors.New("db down")
	runner := &fakeRunner{run: func(_ context.Context, _ *Record, _ Sink) (Result, error) {
		return Result{Status: store.StatusCompleted, ResultRef: "/out/d.html"}, nil
	}}
	s := newTestSupervisor(t, db, runner, nil, 10)

	id, err := s.Create(context.Background(), CreateParams{OwnerID: "user-1"})
	if err != nil {
		t.Fatalf("Create failed despite snapshot errors: %v", err)
	}

	view := waitForTerminal(t, s, id)
	if view.Status != store.StatusCompleted {
		t.Errorf("status = %s, want completed despite snapshot failures", view.Status)
	}
}

func TestSupervisor_StatusFallsBackToDurableStore(t *testing.T) {
	db := newFakeDB()
	db.byID["cold-job"] = &store.JobSnapshot{
		JobID:   "cold-job",
		OwnerID: "user-1",
		Status:  store.StatusCompleted,
		Events: []store.ProgressEvent{
			{Sequence: 1, Kind: store.KindLifecycleStart},
			{Sequence: 2, Kind: store.KindLifecycleEnd},
		},
		ResultRef: "/out/cold.html",
	}
	s := newTestSupervisor(t, db, &fakeRunner{}, nil, 10)

	view, err := s.Status(context.Background(), "cold-job", 1)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if view.Status != store.StatusCompleted || len(view.Events) != 1 {
		t.Errorf("fallback view: status=%s events=%d", view.Status, len(view.Events))
	}

	if _, err := s.Status(context.Background(), "no-such-job", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown job error = %v, want ErrNotFound", err)
	}
}

func TestSupervisor_CancelStopsRunner(t *testing.T) {
	db := newFakeDB()
	started := make(chan struct{})
	runner := &fakeRunner{run: func(ctx context.Context, _ *Record, _ Sink) (Result, error) {
		close(started)
		<-ctx.Done()
		return Result{}, ctx.Err()
	}}
	s := newTestSupervisor(t, db, runner, nil, 10)

	id, _ := s.Create(context.Background(), CreateParams{OwnerID: "user-1"})
	<-started

	if err := s.Cancel(id); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	view := waitForTerminal(t, s, id)
	if view.Status != store.StatusError {
		t.Errorf("cancelled job status = %s, want error", view.Status)
	}

	// Terminal jobs cannot be cancelled again.
	if err := s.Cancel(id); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Cancel on terminal job error = %v, want ErrInvalidState", err)
	}
	if err := s.Cancel("no-such-job"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel on unknown job error = %v, want ErrNotFound", err)
	}
}

func TestSupervisor_DispatchesNotificationOnSuccess(t *testing.T) {
	db := newFakeDB()
	notifier := &fakeNotifier{done: make(chan struct{})}
	runner := &fakeRunner{run: func(_ context.Context, _ *Record, _ Sink) (Result, error) {
		return Result{Status: store.StatusCompleted, ResultRef: "/out/d.html"}, nil
	}}
	s := newTestSupervisor(t, db, runner, notifier, 10)

	id, _ := s.Create(context.Background(), CreateParams{
		OwnerID: "user-1",
		Input:   store.InputRef{Filename: "r.xlsx"},
		Notify:  store.NotificationPrefs{Email: "me@example.com"},
	})
	waitForTerminal(t, s, id)

	select {
	case <-notifier.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification never dispatched")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.calls) != 1 {
		t.Fatalf("notification calls = %d, want 1", len(notifier.calls))
	}
	n := notifier.calls[0]
	if n.JobID != id || n.Email != "me@example.com" || n.Filename != "r.xlsx" {
		t.Errorf("unexpected notification: %+v", n)
	}
}

func TestSupervisor_DispatchesNotificationOnError(t *testing.T) {
	db := newFakeDB()
	notifier := &fakeNotifier{done: make(chan struct{})}
	runner := &fakeRunner{run: func(_ context.Context, _ *Record, _ Sink) (Result, error) {
		return Result{}, errors.New("engine exploded")
	}}
	s := newTestSupervisor(t, db, runner, notifier, 10)

	id, _ := s.Create(context.Background(), CreateParams{
		OwnerID: "user-1",
		Input:   store.InputRef{Filename: "r.xlsx"},
		Notify:  store.NotificationPrefs{Email: "me@example.com"},
	})
	view := waitForTerminal(t, s, id)
	if view.Status != store.StatusError {
		t.Fatalf("status = %s, want error", view.Status)
	}

	select {
	case <-notifier.done:
	case <-time.After(2 * time.Second):
		t.Fatal("error notification never dispatched")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.calls) != 1 {
		t.Fatalf("notification calls = %d, want 1", len(notifier.calls))
	}
	n := notifier.calls[0]
	if n.Status != store.StatusError || n.Message != "Error: engine exploded" {
		t.Errorf("unexpected error notification: %+v", n)
	}
}

func TestSupervisor_NoNotificationWithoutEmail(t *testing.T) {
	db := newFakeDB()
	notifier := &fakeNotifier{}
	runner := &fakeRunner{run: func(_ context.Context, _ *Record, _ Sink) (Result, error) {
		return Result{Status: store.StatusCompleted, ResultRef: "/out/d.html"}, nil
	}}
	s := newTestSupervisor(t, db, runner, notifier, 10)

	id, _ := s.Create(context.Background(), CreateParams{OwnerID: "user-1"})
	waitForTerminal(t, s, id)
	time.Sleep(50 * time.Millisecond)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.calls) != 0 {
		t.Errorf("notification dispatched without an email preference")
	}
}
