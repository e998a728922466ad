package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/ashita-ai/kaigi/internal/model"
)

const noteColumns = `id, workspace_id, title, content_md, transcript_text,
	 summary_text, entities, created_by, created_at, updated_at`

// CreateNote inserts a note and returns it.
// Returns ErrForeignKey if the workspace or creator does not exist.
func (db *DB) CreateNote(ctx context.Context, n model.Note) (model.Note, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO notes (id, workspace_id, title, content_md, transcript_text,
		 summary_text, entities, embedding, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, n.WorkspaceID, n.Title, n.ContentMD, n.TranscriptText,
		n.SummaryText, n.Entities, n.Embedding, n.CreatedBy, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return model.Note{}, fmt.Errorf("storage: note references missing workspace or user: %w", ErrForeignKey)
		}
		return model.Note{}, fmt.Errorf("storage: create note: %w", err)
	}
	return n, nil
}

// GetNote retrieves a note by ID. The embedding column is not loaded.
func (db *DB) GetNote(ctx context.Context, id uuid.UUID) (model.Note, error) {
	return getNote(ctx, db.pool, id)
}

// GetNoteTx is GetNote within a caller-managed transaction.
func GetNoteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (model.Note, error) {
	return getNote(ctx, tx, id)
}

func getNote(ctx context.Context, q rowQuerier, id uuid.UUID) (model.Note, error) {
	var n model.Note
	err := q.QueryRow(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = $1`, id,
	).Scan(
		&n.ID, &n.WorkspaceID, &n.Title, &n.ContentMD, &n.TranscriptText,
		&n.SummaryText, &n.Entities, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Note{}, fmt.Errorf("storage: note %s: %w", id, ErrNotFound)
		}
		return model.Note{}, fmt.Errorf("storage: get note: %w", err)
	}
	return n, nil
}

// ListNotes returns a workspace's notes, newest first.
func (db *DB) ListNotes(ctx context.Context, workspaceID uuid.UUID, limit, offset int) ([]model.Note, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notes WHERE workspace_id = $1`, workspaceID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: count notes: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE workspace_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`, workspaceID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list notes: %w", err)
	}
	defer rows.Close()

	notes, err := scanNotes(rows)
	if err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}

// UpdateNote performs a partial update; only non-nil fields are applied
// (COALESCE pattern). AppendMD is concatenated after any ContentMD
// replacement. Returns the updated note.
func (db *DB) UpdateNote(ctx context.Context, id uuid.UUID, req model.UpdateNoteRequest) (model.Note, error) {
	return updateNote(ctx, db.pool, id, req)
}

// UpdateNoteTx is UpdateNote within a caller-managed transaction. Used by
// the note executors so entity writes commit atomically with the agent
// event status claim.
func UpdateNoteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, req model.UpdateNoteRequest) (model.Note, error) {
	return updateNote(ctx, tx, id, req)
}

// rowQuerier is the subset of pgx shared by pgxpool.Pool and pgx.Tx that
// the dual pool/tx helpers need.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func updateNote(ctx context.Context, q rowQuerier, id uuid.UUID, req model.UpdateNoteRequest) (model.Note, error) {
	var n model.Note
	err := q.QueryRow(ctx,
		`UPDATE notes
		 SET title = COALESCE($1, title),
		     content_md = COALESCE($2, content_md) || COALESCE($3, ''),
		     summary_text = COALESCE($4, summary_text),
		     entities = COALESCE($5, entities),
		     updated_at = now()
		 WHERE id = $6
		 RETURNING `+noteColumns,
		req.Title, req.ContentMD, req.AppendMD, req.SummaryText, req.Entities, id,
	).Scan(
		&n.ID, &n.WorkspaceID, &n.Title, &n.ContentMD, &n.TranscriptText,
		&n.SummaryText, &n.Entities, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Note{}, fmt.Errorf("storage: note %s: %w", id, ErrNotFound)
		}
		return model.Note{}, fmt.Errorf("storage: update note: %w", err)
	}
	return n, nil
}

// SetNoteKnowledgeTx writes extracted entities and a summary onto a note
// within a caller-managed transaction.
func SetNoteKnowledgeTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, entities map[string]any, summary string) (model.Note, error) {
	var n model.Note
	err := tx.QueryRow(ctx,
		`UPDATE notes
		 SET entities = $1, summary_text = $2, updated_at = now()
		 WHERE id = $3
		 RETURNING `+noteColumns,
		entities, summary, id,
	).Scan(
		&n.ID, &n.WorkspaceID, &n.Title, &n.ContentMD, &n.TranscriptText,
		&n.SummaryText, &n.Entities, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Note{}, fmt.Errorf("storage: note %s: %w", id, ErrNotFound)
		}
		return model.Note{}, fmt.Errorf("storage: set note knowledge: %w", err)
	}
	return n, nil
}

// SetNoteEmbedding stores a fresh embedding for a note.
func (db *DB) SetNoteEmbedding(ctx context.Context, id uuid.UUID, embedding pgvector.Vector) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE notes SET embedding = $1 WHERE id = $2`, embedding, id,
	)
	if err != nil {
		return fmt.Errorf("storage: set note embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: note %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteNote removes a note and queues its removal from the search index.
// The outbox entry is inserted in the same transaction so the index delete
// cannot be lost between the row delete and the enqueue.
func (db *DB) DeleteNote(ctx context.Context, id uuid.UUID) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: delete note: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var workspaceID uuid.UUID
	err = tx.QueryRow(ctx,
		`DELETE FROM notes WHERE id = $1 RETURNING workspace_id`, id,
	).Scan(&workspaceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("storage: note %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("storage: delete note: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO search_outbox (note_id, workspace_id, operation)
		 VALUES ($1, $2, 'delete')`,
		id, workspaceID,
	); err != nil {
		return fmt.Errorf("storage: queue search outbox delete: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: delete note: commit: %w", err)
	}
	return nil
}

// SearchNotesByEmbedding returns a workspace's notes ranked by cosine
// similarity to the query embedding. Notes without embeddings are skipped.
func (db *DB) SearchNotesByEmbedding(ctx context.Context, workspaceID uuid.UUID, embedding pgvector.Vector, limit int) ([]model.NoteMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+noteColumns+`, 1 - (embedding <=> $2) AS score
		 FROM notes
		 WHERE workspace_id = $1 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $2
		 LIMIT $3`, workspaceID, embedding, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: search notes by embedding: %w", err)
	}
	defer rows.Close()

	var matches []model.NoteMatch
	for rows.Next() {
		var m model.NoteMatch
		n := &m.Note
		if err := rows.Scan(
			&n.ID, &n.WorkspaceID, &n.Title, &n.ContentMD, &n.TranscriptText,
			&n.SummaryText, &n.Entities, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt,
			&m.Score,
		); err != nil {
			return nil, fmt.Errorf("storage: scan note match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// SearchNotesByText is the fallback when no embedding provider is
// configured: case-insensitive substring match on title and body.
func (db *DB) SearchNotesByText(ctx context.Context, workspaceID uuid.UUID, query string, limit int) ([]model.NoteMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+noteColumns+`
		 FROM notes
		 WHERE workspace_id = $1 AND (title ILIKE '%' || $2 || '%' OR content_md ILIKE '%' || $2 || '%')
		 ORDER BY updated_at DESC
		 LIMIT $3`, workspaceID, query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: search notes by text: %w", err)
	}
	defer rows.Close()

	var matches []model.NoteMatch
	for rows.Next() {
		var m model.NoteMatch
		n := &m.Note
		if err := rows.Scan(
			&n.ID, &n.WorkspaceID, &n.Title, &n.ContentMD, &n.TranscriptText,
			&n.SummaryText, &n.Entities, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan note match: %w", err)
		}
		m.Score = 0 // text match carries no similarity score
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// GetNotesByIDs hydrates notes from the search index's ID results, preserving
// no particular order. Missing IDs are silently skipped (the note may have
// been deleted after indexing).
func (db *DB) GetNotesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Note, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]model.Note{}, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get notes by ids: %w", err)
	}
	defer rows.Close()

	notes, err := scanNotes(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]model.Note, len(notes))
	for _, n := range notes {
		byID[n.ID] = n
	}
	return byID, nil
}

func scanNotes(rows pgx.Rows) ([]model.Note, error) {
	var notes []model.Note
	for rows.Next() {
		var n model.Note
		if err := rows.Scan(
			&n.ID, &n.WorkspaceID, &n.Title, &n.ContentMD, &n.TranscriptText,
			&n.SummaryText, &n.Entities, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
