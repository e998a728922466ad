package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kaigi/internal/model"
)

const agentEventColumns = `id, workspace_id, agent, action, input, output, status, created_at`

// CreateAgentEvent inserts an agent event and returns it. Status defaults
// to draft. Returns ErrForeignKey if the workspace does not exist.
func (db *DB) CreateAgentEvent(ctx context.Context, ev model.AgentEvent) (model.AgentEvent, error) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Status == "" {
		ev.Status = model.AgentEventDraft
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO agent_events (id, workspace_id, agent, action, input, output, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.WorkspaceID, ev.Agent, ev.Action, ev.Input, ev.Output,
		string(ev.Status), ev.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return model.AgentEvent{}, fmt.Errorf("storage: workspace %s does not exist: %w", ev.WorkspaceID, ErrForeignKey)
		}
		return model.AgentEvent{}, fmt.Errorf("storage: create agent event: %w", err)
	}
	return ev, nil
}

// InsertAgentEvents inserts events using the COPY protocol. Used by
// transcript ingestion, which can produce a batch of proposals at once.
// Events must have IDs and timestamps already assigned.
func (db *DB) InsertAgentEvents(ctx context.Context, events []model.AgentEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	columns := []string{"id", "workspace_id", "agent", "action", "input", "output", "status", "created_at"}
	rows := make([][]any, len(events))
	for i, ev := range events {
		rows[i] = []any{
			ev.ID, ev.WorkspaceID, ev.Agent, ev.Action, ev.Input, ev.Output,
			string(ev.Status), ev.CreatedAt,
		}
	}

	// Dedicated COPY timeout prevents a hung Postgres from blocking
	// transcript ingestion indefinitely.
	copyCtx, copyCancel := context.WithTimeout(ctx, 30*time.Second)
	defer copyCancel()
	copyCount, err := db.pool.CopyFrom(
		copyCtx,
		pgx.Identifier{"agent_events"},
		columns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("storage: copy agent events: %w", err)
	}
	return copyCount, nil
}

// GetAgentEvent retrieves an agent event by ID.
func (db *DB) GetAgentEvent(ctx context.Context, id uuid.UUID) (model.AgentEvent, error) {
	var ev model.AgentEvent
	err := db.pool.QueryRow(ctx,
		`SELECT `+agentEventColumns+` FROM agent_events WHERE id = $1`, id,
	).Scan(
		&ev.ID, &ev.WorkspaceID, &ev.Agent, &ev.Action, &ev.Input, &ev.Output,
		&ev.Status, &ev.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AgentEvent{}, fmt.Errorf("storage: agent event %s: %w", id, ErrNotFound)
		}
		return model.AgentEvent{}, fmt.Errorf("storage: get agent event: %w", err)
	}
	return ev, nil
}

// ListAgentEvents returns a workspace's agent events, newest first,
// optionally filtered by status. The id tiebreak keeps ordering stable for
// events created in the same instant.
func (db *DB) ListAgentEvents(ctx context.Context, workspaceID uuid.UUID, status *model.AgentEventStatus, limit, offset int) ([]model.AgentEvent, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var statusStr *string
	if status != nil {
		s := string(*status)
		statusStr = &s
	}

	var total int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM agent_events
		 WHERE workspace_id = $1 AND ($2::text IS NULL OR status = $2)`,
		workspaceID, statusStr,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: count agent events: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+agentEventColumns+` FROM agent_events
		 WHERE workspace_id = $1 AND ($2::text IS NULL OR status = $2)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3 OFFSET $4`, workspaceID, statusStr, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list agent events: %w", err)
	}
	defer rows.Close()

	events, err := scanAgentEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// UpdateAgentEvent overwrites whichever of status/output are non-nil and
// returns the updated row. There is deliberately no transition check here:
// patch is the administrative escape hatch and may move a row anywhere,
// terminal states included. Input is immutable after creation and is not
// touched.
func (db *DB) UpdateAgentEvent(ctx context.Context, id uuid.UUID, output map[string]any, status *model.AgentEventStatus) (model.AgentEvent, error) {
	var statusStr *string
	if status != nil {
		s := string(*status)
		statusStr = &s
	}

	var ev model.AgentEvent
	err := db.pool.QueryRow(ctx,
		`UPDATE agent_events
		 SET output = COALESCE($1, output),
		     status = COALESCE($2, status)
		 WHERE id = $3
		 RETURNING `+agentEventColumns,
		output, statusStr, id,
	).Scan(
		&ev.ID, &ev.WorkspaceID, &ev.Agent, &ev.Action, &ev.Input, &ev.Output,
		&ev.Status, &ev.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AgentEvent{}, fmt.Errorf("storage: agent event %s: %w", id, ErrNotFound)
		}
		return model.AgentEvent{}, fmt.Errorf("storage: update agent event: %w", err)
	}
	return ev, nil
}

// ClaimAgentEventTx attempts to move an awaiting_confirmation event to
// executed within a caller-managed transaction. The conditional update is
// what makes confirmation race-safe: of N concurrent confirmers, exactly
// one observes a row count of 1. Returns false without error when another
// confirmer already claimed the event.
func ClaimAgentEventTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx,
		`UPDATE agent_events SET status = 'executed'
		 WHERE id = $1 AND status = 'awaiting_confirmation'`, id,
	)
	if err != nil {
		return false, fmt.Errorf("storage: claim agent event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetAgentEventOutputTx records the executor's output within the claim
// transaction.
func SetAgentEventOutputTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, output map[string]any) error {
	if _, err := tx.Exec(ctx,
		`UPDATE agent_events SET output = $1 WHERE id = $2`, output, id,
	); err != nil {
		return fmt.Errorf("storage: set agent event output: %w", err)
	}
	return nil
}

// MarkAgentEventError moves an awaiting_confirmation event to the error
// state and records the failure detail. The status guard keeps a late
// failure write from clobbering a row that already reached executed or
// error; in that case the update is a silent no-op.
func (db *DB) MarkAgentEventError(ctx context.Context, id uuid.UUID, detail string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE agent_events SET status = 'error', output = $1
		 WHERE id = $2 AND status = 'awaiting_confirmation'`,
		map[string]any{"error": detail}, id,
	)
	if err != nil {
		return fmt.Errorf("storage: mark agent event error: %w", err)
	}
	return nil
}

func scanAgentEvents(rows pgx.Rows) ([]model.AgentEvent, error) {
	var events []model.AgentEvent
	for rows.Next() {
		var ev model.AgentEvent
		if err := rows.Scan(
			&ev.ID, &ev.WorkspaceID, &ev.Agent, &ev.Action, &ev.Input, &ev.Output,
			&ev.Status, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan agent event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
