package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sheetsight/internal/store"
)

// RecoveryManager repopulates the in-memory job table from durable
// snapshots at process startup, and retires restored jobs whose runner
// died with the previous process.
//
// Recovery restores visibility, not execution: a job persisted as
// running is surfaced to pollers with its last known progress and full
// event history, but the original goroutine is gone and the engine
// session cannot be resumed mid-stream. ReconcileStale eventually
// transitions such jobs to error.
type RecoveryManager struct {
	jobs       *Store
	db         store.SnapshotStore
	log        *slog.Logger
	staleAfter time.Duration
}

const defaultStaleAfter = 30 * time.Minute

// NewRecoveryManager wires the manager. staleAfter <= 0 selects the
// default of 30 minutes.
func NewRecoveryManager(jobs *Store, db store.SnapshotStore, log *slog.Logger, staleAfter time.Duration) *RecoveryManager {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &RecoveryManager{jobs: jobs, db: db, log: log, staleAfter: staleAfter}
}

// RestoreOnStartup loads all persisted non-terminal jobs into the job
// table with their stored status preserved as-is. It must run before
// the web layer starts accepting status requests. Calling it twice is
// a no-op for jobs already live, so restoration is idempotent.
func (m *RecoveryManager) RestoreOnStartup(ctx context.Context) (int, error) {
	snaps, err := m.db.LoadActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("load active snapshots: %w", err)
	}

	restored := 0
	for _, snap := range snaps {
		if _, ok := m.jobs.Get(snap.JobID); ok {
			continue
		}
		rec := FromSnapshot(snap)
		rec.restored = true
		if err := m.jobs.Insert(rec); err != nil {
			m.log.Warn("skipping snapshot during restore", "job_id", snap.JobID, "error", err)
			continue
		}
		restored++
		m.log.Info("restored job from snapshot",
			"job_id", snap.JobID, "owner_id", snap.OwnerID, "status", snap.Status,
			"events", len(snap.Events))
	}
	return restored, nil
}

// ReconcileStale finalizes restored jobs that have been idle longer
// than the staleness window. Their runner died with the old process
// and is never relaunched, so without this pass they would poll as
// active forever. This covers pending records too: a crash between the
// initial snapshot and the runner's first transition restores a pending
// job that nothing will ever start. Returns the number of jobs retired.
func (m *RecoveryManager) ReconcileStale(ctx context.Context, now time.Time) int {
	retired := 0
	for _, rec := range m.jobs.ActiveRecords() {
		if !rec.Restored() || rec.Status().Terminal() {
			continue
		}
		idle := now.Sub(rec.lastActivity())
		if idle < m.staleAfter {
			continue
		}

		// The restored record has no live runner, so this pass is its
		// only writer and the single-writer invariant holds.
		if _, err := rec.AppendEvent(store.KindError, map[string]string{
			"message": fmt.Sprintf("analysis was interrupted by a server restart and did not resume within %s", m.staleAfter),
		}); err != nil {
			m.log.Warn("failed to append staleness event", "job_id", rec.ID(), "error", err)
		}
		if err := rec.Finalize(store.StatusError, "", "Analysis was interrupted by a server restart"); err != nil {
			m.log.Warn("failed to finalize stale job", "job_id", rec.ID(), "error", err)
			continue
		}
		if !rec.Guest() {
			saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := m.db.SaveSnapshot(saveCtx, rec.Snapshot()); err != nil {
				m.log.Warn("failed to snapshot stale job", "job_id", rec.ID(), "error", err)
			}
			cancel()
		}
		retired++
		m.log.Info("retired stale restored job", "job_id", rec.ID(), "idle", idle)
	}
	return retired
}

// Run reconciles on a fixed interval until the context is cancelled.
func (m *RecoveryManager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ReconcileStale(ctx, time.Now().UTC())
		}
	}
}
