package kaigi

import (
	"time"

	"github.com/google/uuid"
)

// User is a person who can own workspaces and be assigned tasks.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Workspace is the collaboration boundary for notes, tasks, reminders,
// and agent events.
type Workspace struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Note is a markdown document in a workspace.
type Note struct {
	ID             uuid.UUID      `json:"id"`
	WorkspaceID    uuid.UUID      `json:"workspace_id"`
	Title          string         `json:"title"`
	ContentMD      string         `json:"content_md"`
	TranscriptText *string        `json:"transcript_text,omitempty"`
	SummaryText    *string        `json:"summary_text,omitempty"`
	Entities       map[string]any `json:"entities,omitempty"`
	CreatedBy      *uuid.UUID     `json:"created_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NoteMatch is a note paired with its search relevance.
type NoteMatch struct {
	Note  Note    `json:"note"`
	Score float64 `json:"score"`
}

// Task is a unit of work in a workspace.
type Task struct {
	ID           uuid.UUID  `json:"id"`
	WorkspaceID  uuid.UUID  `json:"workspace_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	AssigneeID   *uuid.UUID `json:"assignee_id,omitempty"`
	LinkedNoteID *uuid.UUID `json:"linked_note_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Reminder is a scheduled nudge attached to a workspace and optionally
// to a task.
type Reminder struct {
	ID          uuid.UUID  `json:"id"`
	WorkspaceID uuid.UUID  `json:"workspace_id"`
	TaskID      *uuid.UUID `json:"task_id,omitempty"`
	RemindAt    time.Time  `json:"remind_at"`
	Message     string     `json:"message"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Agent event lifecycle statuses.
const (
	StatusDraft                = "draft"
	StatusAwaitingConfirmation = "awaiting_confirmation"
	StatusExecuted             = "executed"
	StatusError                = "error"
)

// AgentEvent records one proposed agent action and its outcome.
type AgentEvent struct {
	ID          uuid.UUID      `json:"id"`
	WorkspaceID uuid.UUID      `json:"workspace_id"`
	Agent       string         `json:"agent"`
	Action      string         `json:"action"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

// CreateUserRequest is the body for CreateUser.
type CreateUserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// CreateWorkspaceRequest is the body for CreateWorkspace.
type CreateWorkspaceRequest struct {
	Name    string    `json:"name"`
	OwnerID uuid.UUID `json:"owner_id"`
}

// CreateNoteRequest is the body for CreateNote.
type CreateNoteRequest struct {
	Title     string     `json:"title"`
	ContentMD string     `json:"content_md"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
}

// UpdateNoteRequest is the body for UpdateNote. Nil fields are left
// unchanged; AppendMD appends to the body instead of replacing it.
type UpdateNoteRequest struct {
	Title       *string        `json:"title,omitempty"`
	ContentMD   *string        `json:"content_md,omitempty"`
	AppendMD    *string        `json:"append_md,omitempty"`
	SummaryText *string        `json:"summary_text,omitempty"`
	Entities    map[string]any `json:"entities,omitempty"`
}

// CreateTaskRequest is the body for CreateTask.
type CreateTaskRequest struct {
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Priority     string     `json:"priority,omitempty"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	AssigneeID   *uuid.UUID `json:"assignee_id,omitempty"`
	LinkedNoteID *uuid.UUID `json:"linked_note_id,omitempty"`
}

// UpdateTaskRequest is the body for UpdateTask. Nil fields are left
// unchanged.
type UpdateTaskRequest struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Status       *string    `json:"status,omitempty"`
	Priority     *string    `json:"priority,omitempty"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	AssigneeID   *uuid.UUID `json:"assignee_id,omitempty"`
	LinkedNoteID *uuid.UUID `json:"linked_note_id,omitempty"`
}

// CreateReminderRequest is the body for CreateReminder.
type CreateReminderRequest struct {
	TaskID   *uuid.UUID `json:"task_id,omitempty"`
	RemindAt time.Time  `json:"remind_at"`
	Message  string     `json:"message"`
}

// CreateAgentEventRequest is the body for CreateAgentEvent.
type CreateAgentEventRequest struct {
	WorkspaceID uuid.UUID      `json:"workspace_id"`
	Agent       string         `json:"agent"`
	Action      string         `json:"action"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Status      *string        `json:"status,omitempty"`
}

// PatchAgentEventRequest is the body for PatchAgentEvent. Input is
// immutable and cannot be patched.
type PatchAgentEventRequest struct {
	Output map[string]any `json:"output,omitempty"`
	Status *string        `json:"status,omitempty"`
}

// IngestTranscriptResponse is the meeting note plus the proposals the
// agents derived from it.
type IngestTranscriptResponse struct {
	Note      Note         `json:"note"`
	Proposals []AgentEvent `json:"proposals"`
}

// HealthResponse reports server and dependency health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Qdrant   string `json:"qdrant,omitempty"`
	Uptime   int64  `json:"uptime_seconds"`
}

// List holds one page of results from a list endpoint.
type List[T any] struct {
	Items   []T
	Total   int
	HasMore bool
}
