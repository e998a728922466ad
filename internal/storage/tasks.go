package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ashita-ai/kaigi/internal/model"
)

const taskColumns = `id, workspace_id, title, description, status, priority,
	 due_at, assignee_id, linked_note_id, created_at, updated_at`

// execQuerier is the subset of pgx shared by pgxpool.Pool and pgx.Tx that
// the dual pool/tx insert helpers need.
type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// CreateTask inserts a task and returns it. Zero-valued status and priority
// fall back to todo/med. Returns ErrForeignKey if the workspace, assignee,
// or linked note does not exist.
func (db *DB) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	return createTask(ctx, db.pool, t)
}

// CreateTaskTx is CreateTask within a caller-managed transaction. Used by
// the task executor so the insert commits atomically with the agent event
// status claim.
func CreateTaskTx(ctx context.Context, tx pgx.Tx, t model.Task) (model.Task, error) {
	return createTask(ctx, tx, t)
}

func createTask(ctx context.Context, q execQuerier, t model.Task) (model.Task, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = model.TaskStatusTodo
	}
	if t.Priority == "" {
		t.Priority = model.TaskPriorityMed
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}

	_, err := q.Exec(ctx,
		`INSERT INTO tasks (id, workspace_id, title, description, status, priority,
		 due_at, assignee_id, linked_note_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.WorkspaceID, t.Title, t.Description, string(t.Status), string(t.Priority),
		t.DueAt, t.AssigneeID, t.LinkedNoteID, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return model.Task{}, fmt.Errorf("storage: task references missing workspace, user, or note: %w", ErrForeignKey)
		}
		return model.Task{}, fmt.Errorf("storage: create task: %w", err)
	}
	return t, nil
}

// GetTask retrieves a task by ID.
func (db *DB) GetTask(ctx context.Context, id uuid.UUID) (model.Task, error) {
	var t model.Task
	err := db.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id,
	).Scan(
		&t.ID, &t.WorkspaceID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.DueAt, &t.AssigneeID, &t.LinkedNoteID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Task{}, fmt.Errorf("storage: task %s: %w", id, ErrNotFound)
		}
		return model.Task{}, fmt.Errorf("storage: get task: %w", err)
	}
	return t, nil
}

// ListTasks returns a workspace's tasks, newest first, optionally filtered
// by status.
func (db *DB) ListTasks(ctx context.Context, workspaceID uuid.UUID, status *model.TaskStatus, limit, offset int) ([]model.Task, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var statusStr *string
	if status != nil {
		s := string(*status)
		statusStr = &s
	}

	var total int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tasks WHERE workspace_id = $1 AND ($2::text IS NULL OR status = $2)`,
		workspaceID, statusStr,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: count tasks: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE workspace_id = $1 AND ($2::text IS NULL OR status = $2)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3 OFFSET $4`, workspaceID, statusStr, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(
			&t.ID, &t.WorkspaceID, &t.Title, &t.Description, &t.Status, &t.Priority,
			&t.DueAt, &t.AssigneeID, &t.LinkedNoteID, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("storage: scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, total, rows.Err()
}

// UpdateTask performs a partial update; only non-nil fields are applied
// (COALESCE pattern). Returns the updated task.
func (db *DB) UpdateTask(ctx context.Context, id uuid.UUID, req model.UpdateTaskRequest) (model.Task, error) {
	var statusStr, priorityStr *string
	if req.Status != nil {
		s := string(*req.Status)
		statusStr = &s
	}
	if req.Priority != nil {
		p := string(*req.Priority)
		priorityStr = &p
	}

	var t model.Task
	err := db.pool.QueryRow(ctx,
		`UPDATE tasks
		 SET title = COALESCE($1, title),
		     description = COALESCE($2, description),
		     status = COALESCE($3, status),
		     priority = COALESCE($4, priority),
		     due_at = COALESCE($5, due_at),
		     assignee_id = COALESCE($6, assignee_id),
		     linked_note_id = COALESCE($7, linked_note_id),
		     updated_at = now()
		 WHERE id = $8
		 RETURNING `+taskColumns,
		req.Title, req.Description, statusStr, priorityStr,
		req.DueAt, req.AssigneeID, req.LinkedNoteID, id,
	).Scan(
		&t.ID, &t.WorkspaceID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.DueAt, &t.AssigneeID, &t.LinkedNoteID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Task{}, fmt.Errorf("storage: task %s: %w", id, ErrNotFound)
		}
		if isForeignKeyViolation(err) {
			return model.Task{}, fmt.Errorf("storage: task references missing user or note: %w", ErrForeignKey)
		}
		return model.Task{}, fmt.Errorf("storage: update task: %w", err)
	}
	return t, nil
}

// DeleteTask removes a task. Reminders attached to it cascade.
func (db *DB) DeleteTask(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: task %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountTasks returns the number of tasks in a workspace. Used by tests and
// the MCP workspace summary resource.
func (db *DB) CountTasks(ctx context.Context, workspaceID uuid.UUID) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tasks WHERE workspace_id = $1`, workspaceID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count tasks: %w", err)
	}
	return n, nil
}
