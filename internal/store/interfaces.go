package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SnapshotStore persists serialized job records keyed by job id.
//
// Writes for one job are strictly serialized through its single supervisor
// goroutine, so SaveSnapshot is last-write-wins by design. Implementations
// must support concurrent writes across different job ids.
type SnapshotStore interface {
	// SaveSnapshot upserts the snapshot for snap.JobID, overwriting any
	// prior snapshot for that job.
	SaveSnapshot(ctx context.Context, snap *JobSnapshot) error

	// LoadSnapshot returns the snapshot for jobID, or ErrNotFound.
	LoadSnapshot(ctx context.Context, jobID string) (*JobSnapshot, error)

	// LoadActive returns all snapshots whose stored status is non-terminal.
	// This is the startup-recovery query.
	LoadActive(ctx context.Context) ([]*JobSnapshot, error)

	// ListRecent returns up to limit snapshots for the owner, newest first.
	ListRecent(ctx context.Context, ownerID string, limit int) ([]*JobSnapshot, error)
}

// UserStore handles account lookup for API-key authentication.
type UserStore interface {
	// CreateUser inserts a new user with the given API key hash.
	CreateUser(ctx context.Context, user *User, keyHash string) error

	// GetUserByAPIKeyHash returns the user owning the hashed key, or ErrNotFound.
	GetUserByAPIKeyHash(ctx context.Context, hash string) (*User, error)
}
