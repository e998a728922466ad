package model

import (
	"time"

	"github.com/google/uuid"
)

// ReminderStatus represents the delivery state of a reminder.
type ReminderStatus string

const (
	ReminderStatusPending   ReminderStatus = "pending"
	ReminderStatusSent      ReminderStatus = "sent"
	ReminderStatusCancelled ReminderStatus = "cancelled"
)

// Reminder is a scheduled nudge attached to a workspace and optionally
// to a task. Delivery is handled out of band; this service only stores
// and serves the rows.
type Reminder struct {
	ID          uuid.UUID      `json:"id"`
	WorkspaceID uuid.UUID      `json:"workspace_id"`
	TaskID      *uuid.UUID     `json:"task_id,omitempty"`
	RemindAt    time.Time      `json:"remind_at"`
	Message     string         `json:"message"`
	Status      ReminderStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}
