package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kaigi/internal/model"
	"github.com/ashita-ai/kaigi/internal/service/summarize"
	"github.com/ashita-ai/kaigi/internal/storage"
)

// ExtractKnowledgeExecutor re-runs entity extraction over a note and
// persists the extracted entities and summary onto it. The source text is
// the raw transcript when the note has one, otherwise the note body.
type ExtractKnowledgeExecutor struct {
	Extractor *summarize.Summarizer
}

type extractKnowledgeInput struct {
	NoteID *uuid.UUID `json:"note_id"`
}

func (e *ExtractKnowledgeExecutor) Execute(ctx context.Context, tx pgx.Tx, ev model.AgentEvent) (map[string]any, error) {
	var in extractKnowledgeInput
	if err := decodeInput(ev.Input, &in); err != nil {
		return nil, fmt.Errorf("extract knowledge: %w", err)
	}
	if in.NoteID == nil || *in.NoteID == uuid.Nil {
		return nil, fmt.Errorf("extract knowledge: note_id is required: %w", ErrInvalidInput)
	}

	note, err := storage.GetNoteTx(ctx, tx, *in.NoteID)
	if err != nil {
		return nil, fmt.Errorf("extract knowledge: %w", err)
	}

	source := note.ContentMD
	if note.TranscriptText != nil && *note.TranscriptText != "" {
		source = *note.TranscriptText
	}

	summary, entities := e.Extractor.Extract(source)
	updated, err := storage.SetNoteKnowledgeTx(ctx, tx, note.ID, entities, summary)
	if err != nil {
		return nil, fmt.Errorf("extract knowledge: %w", err)
	}

	entityCount := 0
	for _, v := range entities {
		if items, ok := v.([]string); ok {
			entityCount += len(items)
		}
	}

	return map[string]any{
		"note_id":      updated.ID.String(),
		"entity_count": entityCount,
		"message":      "Knowledge extracted successfully",
	}, nil
}
