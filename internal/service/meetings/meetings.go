// Package meetings ingests meeting transcripts.
//
// Ingestion turns a raw transcript into a meeting note (summary, entities,
// transcript preserved) and a batch of agent proposals — one create_task
// proposal per detected action item plus one extract_knowledge proposal
// for the note. The proposals are staged awaiting_confirmation: nothing
// ingestion derives takes effect until a human confirms it.
package meetings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/kaigi/internal/agent"
	"github.com/ashita-ai/kaigi/internal/model"
	"github.com/ashita-ai/kaigi/internal/service/notes"
	"github.com/ashita-ai/kaigi/internal/service/summarize"
	"github.com/ashita-ai/kaigi/internal/storage"
)

// Service turns transcripts into notes and proposals.
type Service struct {
	db         *storage.DB
	notes      *notes.Service
	summarizer *summarize.Summarizer
	logger     *slog.Logger
}

// New creates the meetings service.
func New(db *storage.DB, notesSvc *notes.Service, summarizer *summarize.Summarizer, logger *slog.Logger) *Service {
	return &Service{
		db:         db,
		notes:      notesSvc,
		summarizer: summarizer,
		logger:     logger,
	}
}

// IngestTranscript processes a meeting transcript:
//  1. Summarize (summary text, action items, entities).
//  2. Create the meeting note, embedded and queued for indexing.
//  3. Stage one TaskAgent proposal per action item and one KnowledgeAgent
//     proposal for the note, all awaiting_confirmation.
//
// The note insert is the authoritative write; proposal staging failures
// degrade to a note without proposals rather than losing the transcript.
func (s *Service) IngestTranscript(ctx context.Context, workspaceID uuid.UUID, req model.IngestTranscriptRequest) (model.IngestTranscriptResponse, error) {
	if err := model.ValidateTitle(req.Title); err != nil {
		return model.IngestTranscriptResponse{}, fmt.Errorf("ingest transcript: %v: %w", err, agent.ErrInvalidInput)
	}
	if req.Transcript == "" {
		return model.IngestTranscriptResponse{}, fmt.Errorf("ingest transcript: transcript is required: %w", agent.ErrInvalidInput)
	}
	if len(req.Transcript) > model.MaxTranscriptLen {
		return model.IngestTranscriptResponse{}, fmt.Errorf("ingest transcript: transcript exceeds %d bytes: %w", model.MaxTranscriptLen, agent.ErrInvalidInput)
	}

	sum := s.summarizer.Summarize(req.Transcript)
	entities := entitiesJSON(sum)

	note, err := s.notes.CreateRaw(ctx, model.Note{
		WorkspaceID:    workspaceID,
		Title:          req.Title,
		ContentMD:      summarize.SummaryMarkdown(req.Title, sum),
		TranscriptText: &req.Transcript,
		SummaryText:    &sum.Text,
		Entities:       entities,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		return model.IngestTranscriptResponse{}, fmt.Errorf("ingest transcript: %w", err)
	}

	proposals := s.buildProposals(ctx, workspaceID, note, sum)
	if len(proposals) > 0 {
		if _, err := s.db.InsertAgentEvents(ctx, proposals); err != nil {
			// The note is saved; losing proposals is recoverable (the user
			// can re-propose), losing the transcript is not.
			s.logger.Error("meetings: staging proposals failed", "note_id", note.ID, "error", err)
			proposals = nil
		}
	}

	s.logger.Info("transcript ingested",
		"workspace_id", workspaceID, "note_id", note.ID,
		"action_items", len(sum.ActionItems), "proposals", len(proposals))

	return model.IngestTranscriptResponse{Note: note, Proposals: proposals}, nil
}

// buildProposals stages the agent events ingestion derives from a summary.
// Events are created directly in awaiting_confirmation: ingestion is itself
// the drafting step, so the human's next action is a one-step confirm.
func (s *Service) buildProposals(ctx context.Context, workspaceID uuid.UUID, note model.Note, sum summarize.Summary) []model.AgentEvent {
	now := time.Now().UTC()
	var events []model.AgentEvent

	for _, item := range sum.ActionItems {
		input := map[string]any{
			"title":          item.Title,
			"linked_note_id": note.ID.String(),
		}
		if item.Assignee != "" {
			// The summarizer yields a display name; resolve it to a user so
			// the proposal confirms in one step. Unresolved names stay as a
			// hint for the human, and confirm will reject the missing
			// assignee_id.
			if u, err := s.db.FindUserByName(ctx, item.Assignee); err == nil && u != nil {
				input["assignee_id"] = u.ID.String()
			} else {
				input["assignee_hint"] = item.Assignee
			}
		}
		events = append(events, model.AgentEvent{
			ID:          uuid.New(),
			WorkspaceID: workspaceID,
			Agent:       model.AgentTask,
			Action:      model.ActionCreateTask,
			Input:       input,
			Status:      model.AgentEventAwaitingConfirmation,
			CreatedAt:   now,
		})
	}

	events = append(events, model.AgentEvent{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Agent:       model.AgentKnowledge,
		Action:      model.ActionExtractKnowledge,
		Input:       map[string]any{"note_id": note.ID.String()},
		Status:      model.AgentEventAwaitingConfirmation,
		CreatedAt:   now,
	})

	return events
}

// entitiesJSON flattens a summary's extractions into the notes.entities
// column shape.
func entitiesJSON(sum summarize.Summary) map[string]any {
	if len(sum.People) == 0 && len(sum.Dates) == 0 && len(sum.Topics) == 0 {
		return nil
	}
	// Round-trip through JSON so the map holds []any like every other
	// value read back from jsonb.
	raw, err := json.Marshal(map[string]any{
		"people": sum.People,
		"dates":  sum.Dates,
		"topics": sum.Topics,
	})
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
