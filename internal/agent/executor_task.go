package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kaigi/internal/model"
	"github.com/ashita-ai/kaigi/internal/storage"
)

// CreateTaskExecutor inserts a task from a confirmed TaskAgent proposal.
type CreateTaskExecutor struct{}

type createTaskInput struct {
	WorkspaceID  *uuid.UUID `json:"workspace_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Priority     string     `json:"priority"`
	DueAt        *time.Time `json:"due_at"`
	AssigneeID   *uuid.UUID `json:"assignee_id"`
	LinkedNoteID *uuid.UUID `json:"linked_note_id"`
}

// Execute validates the payload and inserts the task. The payload's
// workspace_id wins when present; proposals usually omit it and inherit
// the event's workspace. Status always starts at todo.
func (e *CreateTaskExecutor) Execute(ctx context.Context, tx pgx.Tx, ev model.AgentEvent) (map[string]any, error) {
	var in createTaskInput
	if err := decodeInput(ev.Input, &in); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if err := model.ValidateTitle(in.Title); err != nil {
		return nil, fmt.Errorf("create task: %v: %w", err, ErrInvalidInput)
	}
	if in.AssigneeID == nil || *in.AssigneeID == uuid.Nil {
		return nil, fmt.Errorf("create task: assignee_id is required: %w", ErrInvalidInput)
	}

	workspaceID := ev.WorkspaceID
	if in.WorkspaceID != nil && *in.WorkspaceID != uuid.Nil {
		workspaceID = *in.WorkspaceID
	}

	priority := model.TaskPriorityMed
	if in.Priority != "" {
		priority = model.TaskPriority(in.Priority)
		if !priority.Valid() {
			return nil, fmt.Errorf("create task: unknown priority %q: %w", in.Priority, ErrInvalidInput)
		}
	}

	task, err := storage.CreateTaskTx(ctx, tx, model.Task{
		WorkspaceID:  workspaceID,
		Title:        in.Title,
		Description:  in.Description,
		Status:       model.TaskStatusTodo,
		Priority:     priority,
		DueAt:        in.DueAt,
		AssigneeID:   in.AssigneeID,
		LinkedNoteID: in.LinkedNoteID,
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	return map[string]any{
		"task_id": task.ID.String(),
		"message": "Task created successfully",
	}, nil
}
