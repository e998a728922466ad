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

// CreateWorkspace inserts a workspace and returns it.
// Returns ErrForeignKey if the owner does not exist.
func (db *DB) CreateWorkspace(ctx context.Context, w model.Workspace) (model.Workspace, error) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO workspaces (id, name, owner_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		w.ID, w.Name, w.OwnerID, w.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return model.Workspace{}, fmt.Errorf("storage: workspace owner %s does not exist: %w", w.OwnerID, ErrForeignKey)
		}
		return model.Workspace{}, fmt.Errorf("storage: create workspace: %w", err)
	}
	return w, nil
}

// GetWorkspace retrieves a workspace by ID.
func (db *DB) GetWorkspace(ctx context.Context, id uuid.UUID) (model.Workspace, error) {
	var w model.Workspace
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, owner_id, created_at FROM workspaces WHERE id = $1`, id,
	).Scan(&w.ID, &w.Name, &w.OwnerID, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Workspace{}, fmt.Errorf("storage: workspace %s: %w", id, ErrNotFound)
		}
		return model.Workspace{}, fmt.Errorf("storage: get workspace: %w", err)
	}
	return w, nil
}

// ListWorkspaces returns workspaces ordered by creation time, newest first.
func (db *DB) ListWorkspaces(ctx context.Context, limit, offset int) ([]model.Workspace, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM workspaces`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count workspaces: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, name, owner_id, created_at FROM workspaces
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1 OFFSET $2`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []model.Workspace
	for rows.Next() {
		var w model.Workspace
		if err := rows.Scan(&w.ID, &w.Name, &w.OwnerID, &w.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("storage: scan workspace: %w", err)
		}
		workspaces = append(workspaces, w)
	}
	return workspaces, total, rows.Err()
}

// DeleteWorkspace removes a workspace. Notes, tasks, reminders, and agent
// events cascade at the database level.
func (db *DB) DeleteWorkspace(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM workspaces WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete workspace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: workspace %s: %w", id, ErrNotFound)
	}
	return nil
}
