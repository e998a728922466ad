package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kaigi/internal/model"
	"github.com/ashita-ai/kaigi/internal/storage"
)

// UpdateNoteExecutor applies a MeetingNotesAgent revision to an existing
// note. Only keys present in the payload are written, with the same
// partial-update semantics as the note CRUD endpoint; updated_at is
// refreshed either way.
type UpdateNoteExecutor struct{}

type updateNoteInput struct {
	NoteID      *uuid.UUID     `json:"note_id"`
	SummaryText *string        `json:"summary_text"`
	Entities    map[string]any `json:"entities"`
	ContentMD   *string        `json:"content_md"`
}

func (e *UpdateNoteExecutor) Execute(ctx context.Context, tx pgx.Tx, ev model.AgentEvent) (map[string]any, error) {
	var in updateNoteInput
	if err := decodeInput(ev.Input, &in); err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}
	if in.NoteID == nil || *in.NoteID == uuid.Nil {
		return nil, fmt.Errorf("update note: note_id is required: %w", ErrInvalidInput)
	}

	note, err := storage.UpdateNoteTx(ctx, tx, *in.NoteID, model.UpdateNoteRequest{
		ContentMD:   in.ContentMD,
		SummaryText: in.SummaryText,
		Entities:    in.Entities,
	})
	if err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}

	return map[string]any{
		"note_id": note.ID.String(),
		"message": "Note updated successfully",
	}, nil
}
