package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kaigi/internal/model"
)

// CreateReminder inserts a reminder and returns it.
// Returns ErrForeignKey if the workspace or task does not exist.
func (db *DB) CreateReminder(ctx context.Context, r model.Reminder) (model.Reminder, error) {
	return createReminder(ctx, db.pool, r)
}

// CreateReminderTx is CreateReminder within a caller-managed transaction.
// Used by the calendar executor so the reminder commits atomically with the
// agent event status claim.
func CreateReminderTx(ctx context.Context, tx pgx.Tx, r model.Reminder) (model.Reminder, error) {
	return createReminder(ctx, tx, r)
}

func createReminder(ctx context.Context, q execQuerier, r model.Reminder) (model.Reminder, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = model.ReminderStatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := q.Exec(ctx,
		`INSERT INTO reminders (id, workspace_id, task_id, remind_at, message, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.WorkspaceID, r.TaskID, r.RemindAt, r.Message, string(r.Status), r.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return model.Reminder{}, fmt.Errorf("storage: reminder references missing workspace or task: %w", ErrForeignKey)
		}
		return model.Reminder{}, fmt.Errorf("storage: create reminder: %w", err)
	}
	return r, nil
}

// ListReminders returns a workspace's reminders ordered by remind_at ascending.
func (db *DB) ListReminders(ctx context.Context, workspaceID uuid.UUID, limit, offset int) ([]model.Reminder, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reminders WHERE workspace_id = $1`, workspaceID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: count reminders: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, workspace_id, task_id, remind_at, message, status, created_at
		 FROM reminders WHERE workspace_id = $1
		 ORDER BY remind_at ASC, id ASC
		 LIMIT $2 OFFSET $3`, workspaceID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []model.Reminder
	for rows.Next() {
		var r model.Reminder
		if err := rows.Scan(
			&r.ID, &r.WorkspaceID, &r.TaskID, &r.RemindAt, &r.Message, &r.Status, &r.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("storage: scan reminder: %w", err)
		}
		reminders = append(reminders, r)
	}
	return reminders, total, rows.Err()
}

// CancelReminder marks a pending reminder as cancelled.
func (db *DB) CancelReminder(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE reminders SET status = 'cancelled' WHERE id = $1 AND status = 'pending'`, id,
	)
	if err != nil {
		return fmt.Errorf("storage: cancel reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: reminder %s not found or not pending: %w", id, ErrNotFound)
	}
	return nil
}
