package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"sheetsight/internal/store"
)

// SaveSnapshot upserts the serialized job record. Writes per job are
// serialized through the job's supervisor goroutine, so last-write-wins
// semantics are safe here.
func (s *Store) SaveSnapshot(ctx context.Context, snap *store.JobSnapshot) error {
	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot for %s: %w", snap.JobID, err)
	}

	query := `
		INSERT INTO analyses (job_id, owner_id, status, filename, snapshot, created_at, finalized_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			snapshot = EXCLUDED.snapshot,
			finalized_at = EXCLUDED.finalized_at
	`
	_, err = s.db.ExecContext(ctx, query,
		snap.JobID,
		snap.OwnerID,
		snap.Status,
		snap.Input.Filename,
		blob,
		snap.CreatedAt,
		snap.FinalizedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot for %s: %w", snap.JobID, err)
	}
	return nil
}

// LoadSnapshot returns the snapshot for jobID, or store.ErrNotFound.
func (s *Store) LoadSnapshot(ctx context.Context, jobID string) (*store.JobSnapshot, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT snapshot FROM analyses WHERE job_id = $1", jobID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot for %s: %w", jobID, err)
	}
	return unmarshalSnapshot(blob)
}

// LoadActive returns all snapshots whose stored status is non-terminal.
// This is the startup-recovery query; ordering by job id gives creation
// order since job ids are ULIDs.
func (s *Store) LoadActive(ctx context.Context) ([]*store.JobSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot FROM analyses
		WHERE status IN ($1, $2)
		ORDER BY job_id ASC
	`, store.StatusPending, store.StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("query active snapshots: %w", err)
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

// ListRecent returns up to limit snapshots for the owner, newest first.
func (s *Store) ListRecent(ctx context.Context, ownerID string, limit int) ([]*store.JobSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot FROM analyses
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent snapshots: %w", err)
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

func collectSnapshots(rows *sql.Rows) ([]*store.JobSnapshot, error) {
	var snaps []*store.JobSnapshot
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap, err := unmarshalSnapshot(blob)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

func unmarshalSnapshot(blob []byte) (*store.JobSnapshot, error) {
	var snap store.JobSnapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
