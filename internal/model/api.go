package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Field length limits for caller-supplied text. These keep a single
// oversized field from exhausting the embedding pipeline or filling
// Postgres TEXT columns with caller-controlled garbage.
const (
	MaxTitleLen      = 500
	MaxContentLen    = 256 * 1024  // 256 KB
	MaxTranscriptLen = 1024 * 1024 // 1 MB
	MaxAgentLen      = 200
	MaxActionLen     = 200
	MaxMessageLen    = 2000
	MaxQueryLen      = 2000
)

// ValidateTitle checks presence and length of a title field.
func ValidateTitle(title string) error {
	if title == "" {
		return fmt.Errorf("title is required")
	}
	if len(title) > MaxTitleLen {
		return fmt.Errorf("title exceeds maximum length of %d characters", MaxTitleLen)
	}
	return nil
}

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// ListResponse is the standard envelope for paginated list endpoints.
type ListResponse struct {
	Data    any          `json:"data"`
	Total   int          `json:"total"`
	HasMore bool         `json:"has_more"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
	Meta    ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeUnsupportedAction = "UNSUPPORTED_ACTION"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// CreateUserRequest is the request body for POST /v1/users.
type CreateUserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// CreateWorkspaceRequest is the request body for POST /v1/workspaces.
type CreateWorkspaceRequest struct {
	Name    string    `json:"name"`
	OwnerID uuid.UUID `json:"owner_id"`
}

// CreateNoteRequest is the request body for POST /v1/workspaces/{workspace_id}/notes.
type CreateNoteRequest struct {
	Title     string     `json:"title"`
	ContentMD string     `json:"content_md"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
}

// UpdateNoteRequest is the request body for PATCH /v1/notes/{note_id}.
// All fields are optional; only keys present are applied. AppendMD appends
// to the existing body instead of replacing it.
type UpdateNoteRequest struct {
	Title       *string        `json:"title,omitempty"`
	ContentMD   *string        `json:"content_md,omitempty"`
	AppendMD    *string        `json:"append_md,omitempty"`
	SummaryText *string        `json:"summary_text,omitempty"`
	Entities    map[string]any `json:"entities,omitempty"`
}

// CreateTaskRequest is the request body for POST /v1/workspaces/{workspace_id}/tasks.
type CreateTaskRequest struct {
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Priority     TaskPriority `json:"priority,omitempty"`
	DueAt        *time.Time   `json:"due_at,omitempty"`
	AssigneeID   *uuid.UUID   `json:"assignee_id,omitempty"`
	LinkedNoteID *uuid.UUID   `json:"linked_note_id,omitempty"`
}

// UpdateTaskRequest is the request body for PATCH /v1/tasks/{task_id}.
type UpdateTaskRequest struct {
	Title        *string       `json:"title,omitempty"`
	Description  *string       `json:"description,omitempty"`
	Status       *TaskStatus   `json:"status,omitempty"`
	Priority     *TaskPriority `json:"priority,omitempty"`
	DueAt        *time.Time    `json:"due_at,omitempty"`
	AssigneeID   *uuid.UUID    `json:"assignee_id,omitempty"`
	LinkedNoteID *uuid.UUID    `json:"linked_note_id,omitempty"`
}

// CreateReminderRequest is the request body for POST /v1/workspaces/{workspace_id}/reminders.
type CreateReminderRequest struct {
	TaskID   *uuid.UUID `json:"task_id,omitempty"`
	RemindAt time.Time  `json:"remind_at"`
	Message  string     `json:"message"`
}

// ProposeActionRequest is the request body for
// POST /v1/workspaces/{workspace_id}/agent/proposals.
type ProposeActionRequest struct {
	Agent string         `json:"agent"`
	Input map[string]any `json:"input,omitempty"`
}

// CreateAgentEventRequest is the request body for POST /v1/agent/events.
// Status defaults to draft; output may be pre-set for manual entry.
type CreateAgentEventRequest struct {
	WorkspaceID uuid.UUID         `json:"workspace_id"`
	Agent       string            `json:"agent"`
	Action      string            `json:"action"`
	Input       map[string]any    `json:"input,omitempty"`
	Output      map[string]any    `json:"output,omitempty"`
	Status      *AgentEventStatus `json:"status,omitempty"`
}

// PatchAgentEventRequest is the request body for PATCH /v1/agent/events/{event_id}.
// Status and output overwrite unconditionally; input is immutable after
// creation and cannot be patched.
type PatchAgentEventRequest struct {
	Output map[string]any    `json:"output,omitempty"`
	Status *AgentEventStatus `json:"status,omitempty"`
}

// IngestTranscriptRequest is the request body for
// POST /v1/workspaces/{workspace_id}/meetings/transcripts.
type IngestTranscriptRequest struct {
	Title      string     `json:"title"`
	Transcript string     `json:"transcript"`
	CreatedBy  *uuid.UUID `json:"created_by,omitempty"`
}

/// IngestTranscriptResponse is the response for a transcript ingestion:
// the meeting note plus the proposals the agents derived from it.
type IngestTranscriptResponse struct {
	Note      Note         `json:"note"`
	Proposals []AgentEvent `json:"proposals"`
}

// SearchNotesRequest is the request body for
// POST /v1/workspaces/{workspace_id}/search/notes.
type SearchNotesRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Qdrant   string `json:"qdrant,omitempty"`
	Uptime   int64  `json:"uptime_seconds"`
}
