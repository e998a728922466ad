package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// EnqueueSearchUpsert records that a note needs (re)indexing in the
// external search index. The outbox worker picks it up asynchronously.
func (db *DB) EnqueueSearchUpsert(ctx context.Context, noteID, workspaceID uuid.UUID) error {
	return db.enqueueSearch(ctx, noteID, workspaceID, "upsert")
}

// EnqueueSearchDelete records that a note must be removed from the
// external search index.
func (db *DB) EnqueueSearchDelete(ctx context.Context, noteID, workspaceID uuid.UUID) error {
	return db.enqueueSearch(ctx, noteID, workspaceID, "delete")
}

func (db *DB) enqueueSearch(ctx context.Context, noteID, workspaceID uuid.UUID, operation string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO search_outbox (note_id, workspace_id, operation)
		 VALUES ($1, $2, $3)`,
		noteID, workspaceID, operation,
	)
	if err != nil {
		return fmt.Errorf("storage: enqueue search %s: %w", operation, err)
	}
	return nil
}
