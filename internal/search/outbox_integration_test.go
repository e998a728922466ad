package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ashita-ai/kaigi/migrations"
)

// testPool is the shared connection pool for all integration tests in this file.
var testPool *pgxpool.Pool

// testLogger is the shared logger for tests.
var testLogger *slog.Logger

func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "timescale/timescaledb:latest-pg18",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "kaigi",
			"POSTGRES_PASSWORD": "kaigi",
			"POSTGRES_DB":       "kaigi",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}

	dsn := fmt.Sprintf("postgres://kaigi:kaigi@%s:%s/kaigi?sslmode=disable", host, port.Port())

	// Bootstrap the vector extension before pool creation so pgvector types register.
	bootstrapConn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap connection: %v\n", err)
		os.Exit(1)
	}
	if _, err := bootstrapConn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create vector extension: %v\n", err)
		os.Exit(1)
	}
	_ = bootstrapConn.Close(ctx)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse pool config: %v\n", err)
		os.Exit(1)
	}
	poolCfg.AfterConnect = pgxvector.RegisterTypes

	testPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}

	// Run migrations using the embedded migration FS.
	if err := runMigrations(ctx, dsn); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	code := m.Run()

	testPool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

// runMigrations applies all SQL migration files from the embedded FS.
func runMigrations(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect for migrations: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read migration dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if len(name) < 5 || name[len(name)-4:] != ".sql" {
			continue
		}
		data, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := conn.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

// createTestWorkspace inserts a user and workspace, returning the workspace ID.
func createTestWorkspace(ctx context.Context, t *testing.T) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	_, err := testPool.Exec(ctx,
		`INSERT INTO users (id, email, display_name) VALUES ($1, $2, 'Outbox Tester')`,
		userID, fmt.Sprintf("outbox-%s@example.com", uuid.New().String()[:8]),
	)
	require.NoError(t, err)

	workspaceID := uuid.New()
	_, err = testPool.Exec(ctx,
		`INSERT INTO workspaces (id, name, owner_id) VALUES ($1, $2, $3)`,
		workspaceID, "ws-"+uuid.New().String()[:8], userID,
	)
	require.NoError(t, err)
	return workspaceID
}

// createIndexedNote inserts a note with an embedding and returns the note ID.
func createIndexedNote(ctx context.Context, t *testing.T, workspaceID uuid.UUID, title string, embedding []float32) uuid.UUID {
	t.Helper()
	noteID := uuid.New()
	_, err := testPool.Exec(ctx,
		`INSERT INTO notes (id, workspace_id, title, content_md, embedding)
		 VALUES ($1, $2, $3, 'body', $4)`,
		noteID, workspaceID, title, pgvector.NewVector(embedding),
	)
	require.NoError(t, err)
	return noteID
}

// createPlainNote inserts a note without an embedding.
func createPlainNote(ctx context.Context, t *testing.T, workspaceID uuid.UUID, title string) uuid.UUID {
	t.Helper()
	noteID := uuid.New()
	_, err := testPool.Exec(ctx,
		`INSERT INTO notes (id, workspace_id, title, content_md) VALUES ($1, $2, $3, 'body')`,
		noteID, workspaceID, title,
	)
	require.NoError(t, err)
	return noteID
}

// insertOutboxEntry inserts a search_outbox entry and returns its ID.
func insertOutboxEntry(ctx context.Context, t *testing.T, noteID, workspaceID uuid.UUID, operation string, attempts int) int64 {
	t.Helper()
	var id int64
	err := testPool.QueryRow(ctx,
		`INSERT INTO search_outbox (note_id, workspace_id, operation, attempts)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		noteID, workspaceID, operation, attempts,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// insertOutboxEntryOld inserts a search_outbox entry with an old created_at for cleanup tests.
func insertOutboxEntryOld(ctx context.Context, t *testing.T, noteID, workspaceID uuid.UUID, operation string, attempts int, age time.Duration) int64 {
	t.Helper()
	var id int64
	err := testPool.QueryRow(ctx,
		`INSERT INTO search_outbox (note_id, workspace_id, operation, attempts, created_at)
		 VALUES ($1, $2, $3, $4, now() - $5::interval) RETURNING id`,
		noteID, workspaceID, operation, attempts, fmt.Sprintf("%d seconds", int(age.Seconds())),
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// outboxEntryExists checks if an outbox entry with the given ID exists.
func outboxEntryExists(ctx context.Context, t *testing.T, id int64) bool {
	t.Helper()
	var exists bool
	err := testPool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM search_outbox WHERE id = $1)`, id,
	).Scan(&exists)
	require.NoError(t, err)
	return exists
}

// getOutboxEntry fetches an outbox entry by ID.
func getOutboxEntry(ctx context.Context, t *testing.T, id int64) (attempts int, lastError *string, lockedUntil *time.Time) {
	t.Helper()
	err := testPool.QueryRow(ctx,
		`SELECT attempts, last_error, locked_until FROM search_outbox WHERE id = $1`, id,
	).Scan(&attempts, &lastError, &lockedUntil)
	require.NoError(t, err)
	return
}

// cleanOutbox removes all entries from search_outbox to ensure test isolation.
func cleanOutbox(ctx context.Context, t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(ctx, `DELETE FROM search_outbox`)
	require.NoError(t, err)
}

// newTestWorker creates an OutboxWorker with the test pool and nil index.
// DB-only functions (succeedEntries, failEntries, fetchNotesForIndex,
// cleanupDeadLetters) can be exercised directly; processBatch skips itself.
func newTestWorker() *OutboxWorker {
	return NewOutboxWorker(testPool, nil, testLogger, 100*time.Millisecond, 50)
}

// newTestWorkerWithIndex creates an OutboxWorker with the test pool and a
// QdrantIndex pointing to a non-existent server. This allows processBatch to
// run the full select/lock/process pipeline; Qdrant RPCs will fail, exercising
// the error-handling paths in processUpserts and processDeletes.
func newTestWorkerWithIndex(t *testing.T) *OutboxWorker {
	t.Helper()
	idx, err := NewQdrantIndex(QdrantConfig{
		URL:        "http://localhost:16335", // Non-standard port, no server.
		Collection: "test_outbox",
		Dims:       1536,
	}, testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return NewOutboxWorker(testPool, idx, testLogger, 100*time.Millisecond, 50)
}

func TestSucceedEntries(t *testing.T) {
	ctx := context.Background()
	cleanOutbox(ctx, t)

	noteID1 := uuid.New()
	noteID2 := uuid.New()
	workspaceID := uuid.New()

	id1 := insertOutboxEntry(ctx, t, noteID1, workspaceID, "upsert", 0)
	id2 := insertOutboxEntry(ctx, t, noteID2, workspaceID, "delete", 2)

	require.True(t, outboxEntryExists(ctx, t, id1))
	require.True(t, outboxEntryExists(ctx, t, id2))

	w := newTestWorker()
	entries := []outboxEntry{
		{ID: id1, NoteID: noteID1, WorkspaceID: workspaceID, Operation: "upsert", Attempts: 0},
		{ID: id2, NoteID: noteID2, WorkspaceID: workspaceID, Operation: "delete", Attempts: 2},
	}

	w.succeedEntries(ctx, entries)

	assert.False(t, outboxEntryExists(ctx, t, id1), "entry 1 should be deleted after succeedEntries")
	assert.False(t, outboxEntryExists(ctx, t, id2), "entry 2 should be deleted after succeedEntries")
}

func TestFailEntries(t *testing.T) {
	ctx := context.Background()
	cleanOutbox(ctx, t)

	noteID1 := uuid.New()
	noteID2 := uuid.New()
	workspaceID := uuid.New()

	id1 := insertOutboxEntry(ctx, t, noteID1, workspaceID, "upsert", 0)
	id2 := insertOutboxEntry(ctx, t, noteID2, workspaceID, "upsert", 5)

	w := newTestWorker()
	entries := []outboxEntry{
		{ID: id1, NoteID: noteID1, WorkspaceID: workspaceID, Operation: "upsert", Attempts: 0},
		{ID: id2, NoteID: noteID2, WorkspaceID: workspaceID, Operation: "upsert", Attempts: 5},
	}

	w.failEntries(ctx, entries, "qdrant unavailable")

	// Both entries should still exist with incremented attempts and error message.
	attempts1, lastErr1, lockedUntil1 := getOutboxEntry(ctx, t, id1)
	assert.Equal(t, 1, attempts1, "attempts should be incremented")
	require.NotNil(t, lastErr1)
	assert.Equal(t, "qdrant unavailable", *lastErr1)
	require.NotNil(t, lockedUntil1)
	assert.True(t, lockedUntil1.After(time.Now()), "locked_until should be in the future")

	attempts2, lastErr2, _ := getOutboxEntry(ctx, t, id2)
	assert.Equal(t, 6, attempts2)
	require.NotNil(t, lastErr2)
	assert.Equal(t, "qdrant unavailable", *lastErr2)
}

func TestFailEntries_ExponentialBackoff(t *testing.T) {
	ctx := context.Background()
	cleanOutbox(ctx, t)

	workspaceID := uuid.New()

	// Entry with 0 attempts: backoff = 2^(0+1) = 2 seconds
	noteID1 := uuid.New()
	id1 := insertOutboxEntry(ctx, t, noteID1, workspaceID, "upsert", 0)

	// Entry with 4 attempts: backoff = 2^(4+1) = 32 seconds
	noteID2 := uuid.New()
	id2 := insertOutboxEntry(ctx, t, noteID2, workspaceID, "upsert", 4)

	w := newTestWorker()

	w.failEntries(ctx, []outboxEntry{
		{ID: id1, NoteID: noteID1, WorkspaceID: workspaceID, Operation: "upsert", Attempts: 0},
	}, "error")
	w.failEntries(ctx, []outboxEntry{
		{ID: id2, NoteID: noteID2, WorkspaceID: workspaceID, Operation: "upsert", Attempts: 4},
	}, "error")

	_, _, locked1 := getOutboxEntry(ctx, t, id1)
	_, _, locked2 := getOutboxEntry(ctx, t, id2)

	require.NotNil(t, locked1)
	require.NotNil(t, locked2)

	// locked1 should be ~2 seconds from now; locked2 should be ~32 seconds from now.
	// Use wide bounds since DB clock may differ slightly.
	assert.True(t, locked1.Before(time.Now().Add(10*time.Second)),
		"low-attempt entry should have short backoff")
	assert.True(t, locked2.After(time.Now().Add(20*time.Second)),
		"high-attempt entry should have longer backoff")
}

func TestFailEntries_DeadLetterLogging(t *testing.T) {
	// When an entry's attempts + 1 >= maxOutboxAttempts, it becomes a dead-letter.
	// This test verifies the entry is still updated correctly even at the threshold.
	ctx := context.Background()
	cleanOutbox(ctx, t)

	noteID := uuid.New()
	workspaceID := uuid.New()
	id := insertOutboxEntry(ctx, t, noteID, workspaceID, "upsert", maxOutboxAttempts-1)

	w := newTestWorker()
	w.failEntries(ctx, []outboxEntry{
		{ID: id, NoteID: noteID, WorkspaceID: workspaceID, Operation: "upsert", Attempts: maxOutboxAttempts - 1},
	}, "final failure")

	attempts, lastErr, lockedUntil := getOutboxEntry(ctx, t, id)
	assert.Equal(t, maxOutboxAttempts, attempts, "should reach max attempts")
	require.NotNil(t, lastErr)
	assert.Equal(t, "final failure", *lastErr)
	require.NotNil(t, lockedUntil)
	// At max attempts, backoff = LEAST(2^10, 300) = 300 seconds = 5 minutes.
	assert.True(t, lockedUntil.After(time.Now().Add(4*time.Minute)),
		"dead-letter entry should have max backoff (~5 min)")
}

func TestFetchNotesForIndex(t *testing.T) {
	ctx := context.Background()

	workspaceID := createTestWorkspace(ctx, t)
	embedding := make([]float32, 1536)
	for i := range embedding {
		embedding[i] = float32(i) * 0.001
	}

	noteID := createIndexedNote(ctx, t, workspaceID, "Planning notes", embedding)

	w := newTestWorker()

	notes, err := w.fetchNotesForIndex(ctx, []uuid.UUID{noteID})
	require.NoError(t, err)
	require.Len(t, notes, 1)

	n := notes[0]
	assert.Equal(t, noteID, n.ID)
	assert.Equal(t, workspaceID, n.WorkspaceID)
	assert.Equal(t, "Planning notes", n.Title)
	assert.False(t, n.UpdatedAt.IsZero())
	require.Len(t, n.Embedding, 1536)
	assert.InDelta(t, 0.001, float64(n.Embedding[1]), 0.0001)
}

func TestFetchNotesForIndex_SkipsNoEmbedding(t *testing.T) {
	ctx := context.Background()

	workspaceID := createTestWorkspace(ctx, t)
	noteID := createPlainNote(ctx, t, workspaceID, "Unembedded note")

	w := newTestWorker()

	notes, err := w.fetchNotesForIndex(ctx, []uuid.UUID{noteID})
	require.NoError(t, err)
	assert.Empty(t, notes, "note without an embedding has nothing to index")
}

func TestFetchNotesForIndex_MultipleNotes(t *testing.T) {
	ctx := context.Background()

	workspaceID := createTestWorkspace(ctx, t)
	embedding := make([]float32, 1536)

	id1 := createIndexedNote(ctx, t, workspaceID, "Roadmap", embedding)
	id2 := createIndexedNote(ctx, t, workspaceID, "Retro", embedding)
	id3 := createIndexedNote(ctx, t, workspaceID, "Standup", embedding)

	w := newTestWorker()

	notes, err := w.fetchNotesForIndex(ctx, []uuid.UUID{id1, id2, id3})
	require.NoError(t, err)
	require.Len(t, notes, 3)

	ids := make(map[uuid.UUID]bool, 3)
	for _, n := range notes {
		ids[n.ID] = true
	}
	assert.True(t, ids[id1])
	assert.True(t, ids[id2])
	assert.True(t, ids[id3])
}

func TestCleanupDeadLetters(t *testing.T) {
	ctx := context.Background()
	cleanOutbox(ctx, t)

	workspaceID := uuid.New()

	// Old dead-letter entry: max attempts, created 8 days ago. Should be cleaned.
	id1 := insertOutboxEntryOld(ctx, t, uuid.New(), workspaceID, "upsert", maxOutboxAttempts, 8*24*time.Hour)

	// Recent dead-letter entry: max attempts, created 1 day ago. Should NOT be
	// cleaned (less than 7 days old).
	id2 := insertOutboxEntryOld(ctx, t, uuid.New(), workspaceID, "upsert", maxOutboxAttempts, 1*24*time.Hour)

	// Old entry but below max attempts: created 8 days ago, 5 attempts. Should NOT be cleaned.
	id3 := insertOutboxEntryOld(ctx, t, uuid.New(), workspaceID, "upsert", 5, 8*24*time.Hour)

	w := newTestWorker()
	w.cleanupDeadLetters(ctx)

	assert.False(t, outboxEntryExists(ctx, t, id1),
		"old dead-letter entry (max attempts, >7 days) should be removed")
	assert.True(t, outboxEntryExists(ctx, t, id2),
		"recent dead-letter entry (max attempts, <7 days) should be kept")
	assert.True(t, outboxEntryExists(ctx, t, id3),
		"old entry with low attempts should be kept")
}

func TestCleanupDeadLetters_NoEntries(t *testing.T) {
	ctx := context.Background()
	cleanOutbox(ctx, t)

	w := newTestWorker()
	w.cleanupDeadLetters(ctx)
	// If we reach here without panic, the test passes.
}

func TestProcessBatch_SelectsAndLocksEntries(t *testing.T) {
	ctx := context.Background()
	cleanOutbox(ctx, t)

	workspaceID := createTestWorkspace(ctx, t)
	embedding := make([]float32, 1536)

	noteID1 := createIndexedNote(ctx, t, workspaceID, "Note A", embedding)
	noteID2 := createIndexedNote(ctx, t, workspaceID, "Note B", embedding)

	id1 := insertOutboxEntry(ctx, t, noteID1, workspaceID, "upsert", 0)
	id2 := insertOutboxEntry(ctx, t, noteID2, workspaceID, "delete", 0)

	// Run the SELECT + lock logic from processBatch directly so the selection
	// behavior can be asserted without a live Qdrant.
	tx, err := testPool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT id, note_id, workspace_id, operation, attempts
		 FROM search_outbox
		 WHERE (locked_until IS NULL OR locked_until < now())
		   AND attempts < $1
		 ORDER BY created_at ASC
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		maxOutboxAttempts, 50,
	)
	require.NoError(t, err)

	entries, err := scanOutboxEntries(rows)
	require.NoError(t, err)
	require.Len(t, entries, 2, "should select both pending entries")

	entryIDs := map[int64]bool{id1: false, id2: false}
	for _, e := range entries {
		entryIDs[e.ID] = true
	}
	assert.True(t, entryIDs[id1], "entry 1 should be selected")
	assert.True(t, entryIDs[id2], "entry 2 should be selected")

	_ = tx.Rollback(ctx)
}

func TestProcessBatch_SkipsLockedEntries(t *testing.T) {
	ctx := context.Background()
	cleanOutbox(ctx, t)

	// Insert an entry that is locked until far in the future.
	var id int64
	err := testPool.QueryRow(ctx,
		`INSERT INTO search_outbox (note_id, workspace_id, operation, attempts, locked_until)
		 VALUES ($1, $2, 'upsert', 0, now() + interval '1 hour') RETURNING id`,
		uuid.New(), uuid.New(),
	).Scan(&id)
	require.NoError(t, err)

	tx, err := testPool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT id, note_id, workspace_id, operation, attempts
		 FROM search_outbox
		 WHERE (locked_until IS NULL OR locked_until < now())
		   AND attempts < $1
		 ORDER BY created_at ASC
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		maxOutboxAttempts, 50,
	)
	require.NoError(t, err)

	entries, err := scanOutboxEntries(rows)
	require.NoError(t, err)
	assert.Empty(t, entries, "locked entry should be skipped")

	_ = tx.Rollback(ctx)
}

func TestProcessBatch_SkipsMaxAttempts(t *testing.T) {
	ctx := context.Background()
	cleanOutbox(ctx, t)

	insertOutboxEntry(ctx, t, uuid.New(), uuid.New(), "upsert", maxOutboxAttempts)

	tx, err := testPool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT id, note_id, workspace_id, operation, attempts
		 FROM search_outbox
		 WHERE (locked_until IS NULL OR locked_until < now())
		   AND attempts < $1
		 ORDER BY created_at ASC
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		maxOutboxAttempts, 50,
	)
	require.NoError(t, err)

	entries, err := scanOutboxEntries(rows)
	require.NoError(t, err)
	assert.Empty(t, entries, "entry at max attempts should be skipped")

	_ = tx.Rollback(ctx)
}

func TestProcessBatch_WithIndex_Upserts(t *testing.T) {
	// Full processBatch pipeline with a non-nil QdrantIndex. Entries are
	// selected, locked, fetched, and sent to Qdrant. Since Qdrant is
	// unreachable, the upsert fails and entries are marked via failEntries.
	ctx := context.Background()
	cleanOutbox(ctx, t)

	workspaceID := createTestWorkspace(ctx, t)
	embedding := make([]float32, 1536)
	for i := range embedding {
		embedding[i] = float32(i) * 0.001
	}

	noteID := createIndexedNote(ctx, t, workspaceID, "Indexed note", embedding)
	id := insertOutboxEntry(ctx, t, noteID, workspaceID, "upsert", 0)

	w := newTestWorkerWithIndex(t)
	w.lastCleanup = time.Now() // Prevent cleanup from running.

	batchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	w.processBatch(batchCtx)

	attempts, lastErr, _ := getOutboxEntry(ctx, t, id)
	assert.Equal(t, 1, attempts, "attempts should be incremented after failed upsert")
	require.NotNil(t, lastErr)
	assert.Contains(t, *lastErr, "qdrant upsert", "error should reference qdrant upsert failure")
}

func TestProcessBatch_WithIndex_Deletes(t *testing.T) {
	// processBatch with delete entries. The Qdrant delete fails, exercising
	// the processDeletes error path.
	ctx := context.Background()
	cleanOutbox(ctx, t)

	id := insertOutboxEntry(ctx, t, uuid.New(), uuid.New(), "delete", 0)

	w := newTestWorkerWithIndex(t)
	w.lastCleanup = time.Now()

	batchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	w.processBatch(batchCtx)

	attempts, lastErr, _ := getOutboxEntry(ctx, t, id)
	assert.Equal(t, 1, attempts, "attempts should be incremented after failed delete")
	require.NotNil(t, lastErr)
	assert.Contains(t, *lastErr, "qdrant delete", "error should reference qdrant delete failure")
}

func TestProcessBatch_WithIndex_MixedOperations(t *testing.T) {
	ctx := context.Background()
	cleanOutbox(ctx, t)

	workspaceID := createTestWorkspace(ctx, t)
	embedding := make([]float32, 1536)

	noteID := createIndexedNote(ctx, t, workspaceID, "Mixed batch note", embedding)

	id1 := insertOutboxEntry(ctx, t, noteID, workspaceID, "upsert", 0)
	id2 := insertOutboxEntry(ctx, t, uuid.New(), workspaceID, "delete", 0)

	w := newTestWorkerWithIndex(t)
	w.lastCleanup = time.Now()

	batchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	w.processBatch(batchCtx)

	// Both should fail with incremented attempts.
	attempts1, lastErr1, _ := getOutboxEntry(ctx, t, id1)
	assert.Equal(t, 1, attempts1)
	require.NotNil(t, lastErr1)

	attempts2, lastErr2, _ := getOutboxEntry(ctx, t, id2)
	assert.Equal(t, 1, attempts2)
	require.NotNil(t, lastErr2)
}

func TestProcessBatch_WithIndex_DeletedNoteSucceeds(t *testing.T) {
	// An upsert entry whose note no longer exists (or never got an embedding)
	// has nothing to index: the entry is removed without touching Qdrant.
	ctx := context.Background()
	cleanOutbox(ctx, t)

	workspaceID := createTestWorkspace(ctx, t)
	noteID := createPlainNote(ctx, t, workspaceID, "Never embedded")
	id := insertOutboxEntry(ctx, t, noteID, workspaceID, "upsert", 0)

	w := newTestWorkerWithIndex(t)
	w.lastCleanup = time.Now()

	batchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	w.processBatch(batchCtx)

	assert.False(t, outboxEntryExists(ctx, t, id),
		"upsert entry for an unembedded note should be removed, not retried")
}

func TestProcessBatch_TriggersCleanup(t *testing.T) {
	// processBatch triggers cleanupDeadLetters when lastCleanup is old. Cleanup
	// runs only after processing at least one entry, so insert both a
	// dead-letter entry (to be cleaned) and a processable entry.
	ctx := context.Background()
	cleanOutbox(ctx, t)

	workspaceID := uuid.New()

	deadLetterID := insertOutboxEntryOld(ctx, t, uuid.New(), workspaceID, "upsert", maxOutboxAttempts, 8*24*time.Hour)
	insertOutboxEntry(ctx, t, uuid.New(), workspaceID, "delete", 0)

	w := newTestWorkerWithIndex(t)
	// Set lastCleanup to >1 hour ago to trigger cleanup.
	w.lastCleanup = time.Now().Add(-2 * time.Hour)

	batchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	w.processBatch(batchCtx)

	assert.False(t, outboxEntryExists(ctx, t, deadLetterID),
		"old dead-letter entry should be cleaned during processBatch")
}

func TestOutboxWorker_FullCycle(t *testing.T) {
	// Full worker lifecycle: start, let the poll loop tick, drain. The index
	// is nil so every batch skips itself, but the loop and drain paths run.
	ctx := context.Background()
	cleanOutbox(ctx, t)

	w := NewOutboxWorker(testPool, nil, testLogger, 50*time.Millisecond, 50)

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	w.Start(bgCtx)
	assert.True(t, w.started.Load())

	// Let the worker tick a couple of times.
	time.Sleep(200 * time.Millisecond)

	drainCtx, drainCancel := context.WithTimeout(ctx, 3*time.Second)
	defer drainCancel()
	w.Drain(drainCtx)

	select {
	case <-w.done:
		// Success.
	default:
		t.Fatal("done channel should be closed after drain")
	}
}

func TestOutboxWorker_FullCycleWithIndex(t *testing.T) {
	// Full lifecycle with a non-nil QdrantIndex. The worker starts, processes
	// a few ticks (all Qdrant calls fail), and drains cleanly.
	ctx := context.Background()
	cleanOutbox(ctx, t)

	workspaceID := uuid.New()
	insertOutboxEntry(ctx, t, uuid.New(), workspaceID, "delete", 0)

	w := newTestWorkerWithIndex(t)

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	w.Start(bgCtx)
	assert.True(t, w.started.Load())

	// Let the worker tick a couple of times.
	time.Sleep(300 * time.Millisecond)

	drainCtx, drainCancel := context.WithTimeout(ctx, 5*time.Second)
	defer drainCancel()
	w.Drain(drainCtx)

	select {
	case <-w.done:
		// Success.
	default:
		t.Fatal("done channel should be closed after drain")
	}
}
