package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kaigi/internal/model"
)

// CreateUser inserts a user and returns it.
func (db *DB) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (id, email, display_name, created_at)
		 VALUES ($1, $2, $3, $4)`,
		u.ID, u.Email, u.DisplayName, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, fmt.Errorf("storage: email %s already registered: %w", u.Email, ErrDuplicate)
		}
		return model.User{}, fmt.Errorf("storage: create user: %w", err)
	}
	return u, nil
}

// GetUser retrieves a user by ID.
func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	var u model.User
	err := db.pool.QueryRow(ctx,
		`SELECT id, email, display_name, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("storage: user %s: %w", id, ErrNotFound)
		}
		return model.User{}, fmt.Errorf("storage: get user: %w", err)
	}
	return u, nil
}

// FindUserByName matches a user by display name, case-insensitively, also
// accepting a first-name prefix ("Dana" matches "Dana Kim"). Used by
// transcript ingestion to turn a speaker name into an assignee. Returns
// nil without error when no user matches or the match is ambiguous.
func (db *DB) FindUserByName(ctx context.Context, name string) (*model.User, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, email, display_name, created_at FROM users
		 WHERE display_name ILIKE $1 OR display_name ILIKE $1 || ' %'
		 LIMIT 2`, name,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: find user by name: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: find user by name: %w", err)
	}
	if len(users) != 1 {
		return nil, nil
	}
	return &users[0], nil
}

// ListUsers returns users ordered by creation time, newest first.
func (db *DB) ListUsers(ctx context.Context, limit, offset int) ([]model.User, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count users: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, email, display_name, created_at FROM users
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1 OFFSET $2`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("storage: scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}
