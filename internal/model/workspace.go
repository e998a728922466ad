// Package model defines the core domain types for Kaigi.
//
// All types correspond directly to database tables and API payloads.
// Types use strong typing (UUIDs, time.Time, enums) and avoid
// interface{} wherever possible.
package model

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

// Workspace is the collaboration boundary. Every note, task, reminder,
// and agent event belongs to exactly one workspace; deleting a workspace
// cascades to all of them.
type Workspace struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}
