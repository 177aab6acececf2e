package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"sheetsight/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestCreateUser(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	user := &store.User{
		ID:        "u-1",
		Username:  "alice",
		FullName:  "Alice Example",
		Email:     "alice@example.com",
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(user.ID, user.Username, user.FullName, user.Email, "hash-123", user.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store_.CreateUser(context.Background(), user, "hash-123"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetUserByAPIKeyHash_Success(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`UPDATE users SET last_login = NOW\(\)\s+WHERE api_key_hash = \$1`).
		WithArgs("hash-123").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "username", "full_name", "email", "created_at", "last_login",
		}).AddRow("u-1", "alice", "Alice Example", "alice@example.com", now.Add(-time.Hour), now))

	user, err := store_.GetUserByAPIKeyHash(context.Background(), "hash-123")
	if err != nil {
		t.Fatalf("GetUserByAPIKeyHash failed: %v", err)
	}
	if user.ID != "u-1" || user.Username != "alice" {
		t.Errorf("unexpected user: %+v", user)
	}
	if user.LastLogin == nil {
		t.Error("last_login not populated")
	}
}

func TestGetUserByAPIKeyHash_NotFound(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	mock.ExpectQuery(`UPDATE users SET last_login = NOW\(\)`).
		WithArgs("unknown-hash").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "username", "full_name", "email", "created_at", "last_login",
		}))

	_, err := store_.GetUserByAPIKeyHash(context.Background(), "unknown-hash")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want store.ErrNotFound", err)
	}
}
