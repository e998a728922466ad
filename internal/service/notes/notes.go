// Package notes owns note CRUD orchestration and note search.
//
// Writes go to Postgres first (source of truth), then the note is embedded
// and queued in the search outbox for asynchronous indexing. Embedding and
// indexing are best-effort: a note must never fail to save because an
// embedding API or the search index is down. Search prefers the external
// index when one is configured and healthy, falls back to pgvector, and
// degrades to text matching when no real embedding provider exists.
package notes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/kaigi/internal/agent"
	"github.com/ashita-ai/kaigi/internal/model"
	"github.com/ashita-ai/kaigi/internal/search"
	"github.com/ashita-ai/kaigi/internal/service/embedding"
	"github.com/ashita-ai/kaigi/internal/storage"
)

// Service orchestrates note persistence, embedding, and search. Shared by
// the HTTP handlers and the MCP tools so both surfaces behave identically.
type Service struct {
	db       *storage.DB
	embedder embedding.Provider
	searcher search.Searcher // nil = no external index
	logger   *slog.Logger
}

// New creates the notes service. searcher may be nil.
func New(db *storage.DB, embedder embedding.Provider, searcher search.Searcher, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		embedder: embedder,
		searcher: searcher,
		logger:   logger,
	}
}

// Create validates and inserts a note, then embeds it and queues it for
// search indexing.
func (s *Service) Create(ctx context.Context, workspaceID uuid.UUID, req model.CreateNoteRequest) (model.Note, error) {
	if err := model.ValidateTitle(req.Title); err != nil {
		return model.Note{}, fmt.Errorf("create note: %v: %w", err, agent.ErrInvalidInput)
	}
	if len(req.ContentMD) > model.MaxContentLen {
		return model.Note{}, fmt.Errorf("create note: content exceeds %d bytes: %w", model.MaxContentLen, agent.ErrInvalidInput)
	}

	n, err := s.db.CreateNote(ctx, model.Note{
		WorkspaceID: workspaceID,
		Title:       req.Title,
		ContentMD:   req.ContentMD,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		return model.Note{}, fmt.Errorf("create note: %w", err)
	}

	s.embedAndEnqueue(ctx, n)
	return n, nil
}

// CreateRaw inserts a fully-populated note (transcript, summary, entities
// pre-filled). Used by transcript ingestion.
func (s *Service) CreateRaw(ctx context.Context, n model.Note) (model.Note, error) {
	created, err := s.db.CreateNote(ctx, n)
	if err != nil {
		return model.Note{}, fmt.Errorf("create note: %w", err)
	}
	s.embedAndEnqueue(ctx, created)
	return created, nil
}

// Get returns a single note.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (model.Note, error) {
	n, err := s.db.GetNote(ctx, id)
	if err != nil {
		return model.Note{}, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

// List returns a workspace's notes newest-first.
func (s *Service) List(ctx context.Context, workspaceID uuid.UUID, limit, offset int) ([]model.Note, int, error) {
	ns, total, err := s.db.ListNotes(ctx, workspaceID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list notes: %w", err)
	}
	return ns, total, nil
}

// Update applies a partial update and refreshes the note's embedding and
// index entry when its text changed.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req model.UpdateNoteRequest) (model.Note, error) {
	if req.Title != nil {
		if err := model.ValidateTitle(*req.Title); err != nil {
			return model.Note{}, fmt.Errorf("update note: %v: %w", err, agent.ErrInvalidInput)
		}
	}

	n, err := s.db.UpdateNote(ctx, id, req)
	if err != nil {
		return model.Note{}, fmt.Errorf("update note: %w", err)
	}

	if req.Title != nil || req.ContentMD != nil || req.AppendMD != nil || req.SummaryText != nil {
		s.embedAndEnqueue(ctx, n)
	}
	return n, nil
}

// Delete removes a note. The index removal rides the same transaction as
// the row delete (see storage.DeleteNote).
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.db.DeleteNote(ctx, id); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

// Search finds notes in a workspace relevant to a free-text query.
//
// Resolution order:
//  1. Query embedding via the provider. A zero vector (noop provider)
//     means semantic search is unavailable → text fallback.
//  2. External index when configured and healthy, hydrated from Postgres
//     and recency-rescored.
//  3. pgvector cosine search in Postgres.
func (s *Service) Search(ctx context.Context, workspaceID uuid.UUID, query string, limit int) ([]model.NoteMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search notes: query is required: %w", agent.ErrInvalidInput)
	}
	if len(query) > model.MaxQueryLen {
		return nil, fmt.Errorf("search notes: query exceeds %d characters: %w", model.MaxQueryLen, agent.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("notes: query embedding failed, falling back to text search", "error", err)
		return s.searchByText(ctx, workspaceID, query, limit)
	}
	if embedding.IsZero(vec) {
		return s.searchByText(ctx, workspaceID, query, limit)
	}

	if s.searcher != nil {
		if matches, ok := s.searchIndex(ctx, workspaceID, vec.Slice(), limit); ok {
			return matches, nil
		}
	}

	var matches []model.NoteMatch
	err = storage.WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		var serr error
		matches, serr = s.db.SearchNotesByEmbedding(ctx, workspaceID, vec, limit)
		return serr
	})
	if err != nil {
		return nil, fmt.Errorf("search notes: %w", err)
	}
	return matches, nil
}

// searchIndex queries the external index. Returns ok=false on any failure
// so the caller falls through to pgvector; the index is an accelerator,
// never a point of failure.
func (s *Service) searchIndex(ctx context.Context, workspaceID uuid.UUID, vec []float32, limit int) ([]model.NoteMatch, bool) {
	if err := s.searcher.Healthy(ctx); err != nil {
		s.logger.Debug("notes: search index unhealthy, using pgvector", "error", err)
		return nil, false
	}

	results, err := s.searcher.Search(ctx, workspaceID, vec, limit)
	if err != nil {
		s.logger.Warn("notes: index search failed, using pgvector", "error", err)
		return nil, false
	}

	ids := make([]uuid.UUID, len(results))
	for i, r := range results {
		ids[i] = r.NoteID
	}
	hydrated, err := s.db.GetNotesByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("notes: hydration failed, using pgvector", "error", err)
		return nil, false
	}

	return search.ReScore(results, hydrated, limit), true
}

func (s *Service) searchByText(ctx context.Context, workspaceID uuid.UUID, query string, limit int) ([]model.NoteMatch, error) {
	matches, err := s.db.SearchNotesByText(ctx, workspaceID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search notes: %w", err)
	}
	return matches, nil
}

// SemanticSearchAvailable reports whether queries will use vector search
// rather than the text fallback.
func (s *Service) SemanticSearchAvailable() bool {
	_, isNoop := s.embedder.(*embedding.NoopProvider)
	return !isNoop
}

// embedAndEnqueue embeds the note's searchable text and queues an index
// upsert. Both steps are best-effort; the outbox worker re-reads the row,
// so a failed embedding here only delays indexing until the next write.
func (s *Service) embedAndEnqueue(ctx context.Context, n model.Note) {
	text := embeddingText(n)
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("notes: embedding failed", "note_id", n.ID, "error", err)
	} else if !embedding.IsZero(vec) {
		if err := s.db.SetNoteEmbedding(ctx, n.ID, vec); err != nil {
			s.logger.Warn("notes: store embedding failed", "note_id", n.ID, "error", err)
		}
	}

	if err := s.db.EnqueueSearchUpsert(ctx, n.ID, n.WorkspaceID); err != nil {
		s.logger.Warn("notes: enqueue search upsert failed", "note_id", n.ID, "error", err)
	}
}

// embeddingText builds the text embedded for a note: title plus summary
// when present (the condensed signal), body otherwise.
func embeddingText(n model.Note) string {
	if n.SummaryText != nil && *n.SummaryText != "" {
		return n.Title + "\n" + *n.SummaryText
	}
	return n.Title + "\n" + n.ContentMD
}
