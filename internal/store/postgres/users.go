package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sheetsight/internal/store"
)

// CreateUser inserts a new user row with the hashed API key.
func (s *Store) CreateUser(ctx context.Context, user *store.User, keyHash string) error {
	query := `
		INSERT INTO users (id, username, full_name, email, api_key_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.FullName,
		user.Email,
		keyHash,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create user %s: %w", user.Username, err)
	}
	return nil
}

// GetUserByAPIKeyHash returns the user owning the hashed key and bumps
// last_login, or store.ErrNotFound.
func (s *Store) GetUserByAPIKeyHash(ctx context.Context, hash string) (*store.User, error) {
	var user store.User
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET last_login = NOW()
		WHERE api_key_hash = $1
		RETURNING id, username, full_name, email, created_at, last_login
	`, hash).Scan(&user.ID, &user.Username, &user.FullName, &user.Email, &user.CreatedAt, &user.LastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user by key hash: %w", err)
	}
	return &user, nil
}
