package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusTodo  TaskStatus = "todo"
	TaskStatusDoing TaskStatus = "doing"
	TaskStatusDone  TaskStatus = "done"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusDoing, TaskStatusDone:
		return true
	}
	return false
}

// TaskPriority represents the urgency of a task.
type TaskPriority string

const (
	TaskPriorityLow  TaskPriority = "low"
	TaskPriorityMed  TaskPriority = "med"
	TaskPriorityHigh TaskPriority = "high"
)

// Valid reports whether p is a known task priority.
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMed, TaskPriorityHigh:
		return true
	}
	return false
}

// Task is a unit of work in a workspace, optionally linked to the note
// it originated from.
type Task struct {
	ID           uuid.UUID    `json:"id"`
	WorkspaceID  uuid.UUID    `json:"workspace_id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Status       TaskStatus   `json:"status"`
	Priority     TaskPriority `json:"priority"`
	DueAt        *time.Time   `json:"due_at,omitempty"`
	AssigneeID   *uuid.UUID   `json:"assignee_id,omitempty"`
	LinkedNoteID *uuid.UUID   `json:"linked_note_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
