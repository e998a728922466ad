package model

import (
	"time"

	"github.com/google/uuid"
)

// Well-known agent names. The set is open: proposals from unknown agents
// still route to the generic propose_action fallback.
const (
	AgentMeetingNotes = "MeetingNotesAgent"
	AgentTask         = "TaskAgent"
	AgentScheduler    = "SchedulerAgent"
	AgentKnowledge    = "KnowledgeAgent"
)

// Action names recorded on agent events.
const (
	ActionCreateNote          = "create_note"
	ActionUpdateNote          = "update_note"
	ActionCreateTask          = "create_task"
	ActionCreateCalendarEvent = "create_calendar_event"
	ActionExtractKnowledge    = "extract_knowledge"
	ActionPropose             = "propose_action"
)

// AgentEventStatus represents the lifecycle state of an agent event.
type AgentEventStatus string

const (
	AgentEventDraft                AgentEventStatus = "draft"
	AgentEventAwaitingConfirmation AgentEventStatus = "awaiting_confirmation"
	AgentEventExecuted             AgentEventStatus = "executed"
	AgentEventError                AgentEventStatus = "error"
)

// Valid reports whether s is a known agent event status.
func (s AgentEventStatus) Valid() bool {
	switch s {
	case AgentEventDraft, AgentEventAwaitingConfirmation, AgentEventExecuted, AgentEventError:
		return true
	}
	return false
}

// Terminal reports whether s permits no further transitions.
func (s AgentEventStatus) Terminal() bool {
	return s == AgentEventExecuted || s == AgentEventError
}

// AgentEvent records one proposed agent action and its outcome.
// Lifecycle is tracked through Status alone; rows carry no updated_at.
// Confirm never touches a terminal row again; the patch escape hatch may.
type AgentEvent struct {
	ID          uuid.UUID        `json:"id"`
	WorkspaceID uuid.UUID        `json:"workspace_id"`
	Agent       string           `json:"agent"`
	Action      string           `json:"action"`
	Input       map[string]any   `json:"input,omitempty"`
	Output      map[string]any   `json:"output,omitempty"`
	Status      AgentEventStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
}
