package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Note is a markdown document in a workspace. Notes created from meeting
// transcripts additionally carry the raw transcript, an agent-written
// summary, and extracted entities.
type Note struct {
	ID             uuid.UUID        `json:"id"`
	WorkspaceID    uuid.UUID        `json:"workspace_id"`
	Title          string           `json:"title"`
	ContentMD      string           `json:"content_md"`
	TranscriptText *string          `json:"transcript_text,omitempty"`
	SummaryText    *string          `json:"summary_text,omitempty"`
	Entities       map[string]any   `json:"entities,omitempty"`
	Embedding      *pgvector.Vector `json:"-"`
	CreatedBy      *uuid.UUID       `json:"created_by,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// NoteMatch is a note paired with its search relevance.
type NoteMatch struct {
	Note  Note    `json:"note"`
	Score float64 `json:"score"`
}
