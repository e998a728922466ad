// Package agentflow owns the agent event state machine: proposal, draft
// manipulation, and the confirmation flow that executes staged actions.
//
// Both the HTTP API and MCP server delegate here, so state transitions,
// executor dispatch, and notification behave identically across
// interfaces. Events move draft → awaiting_confirmation → executed|error;
// confirm is the only operation that runs side effects, and it does so
// inside a single transaction with the status claim.
package agentflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/kaigi/internal/agent"
	"github.com/ashita-ai/kaigi/internal/model"
	"github.com/ashita-ai/kaigi/internal/storage"
	"github.com/ashita-ai/kaigi/internal/telemetry"
)

// ErrInvalidState marks a confirm against an event that is not awaiting
// confirmation, including losing a race to another confirmer. The text is
// part of the API contract.
var ErrInvalidState = errors.New("not awaiting confirmation")

// Service encapsulates the agent event lifecycle shared by HTTP and MCP
// handlers.
type Service struct {
	db     *storage.DB
	router *agent.Router
	logger *slog.Logger

	confirmDuration metric.Float64Histogram
	confirmCount    metric.Int64Counter
}

// New creates the agent event service.
func New(db *storage.DB, router *agent.Router, logger *slog.Logger) *Service {
	meter := telemetry.Meter("kaigi/agentflow")
	confirmDur, _ := meter.Float64Histogram("kaigi.confirm.duration",
		metric.WithDescription("Time to confirm an agent event (ms)"),
		metric.WithUnit("ms"),
	)
	confirmCount, _ := meter.Int64Counter("kaigi.confirm.count",
		metric.WithDescription("Confirm attempts by outcome"),
	)
	return &Service{
		db:              db,
		router:          router,
		logger:          logger,
		confirmDuration: confirmDur,
		confirmCount:    confirmCount,
	}
}

// Propose resolves the agent's canonical action and stages a new draft
// event. Resolution is total, so proposals from unknown agents succeed
// with the generic fallback action; the only failure mode is storage
// (e.g. ErrForeignKey for an unknown workspace).
func (s *Service) Propose(ctx context.Context, workspaceID uuid.UUID, agentName string, input map[string]any) (model.AgentEvent, error) {
	action := s.router.ResolveAction(agentName)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("kaigi.agent", agentName),
		attribute.String("kaigi.action", action),
	)

	ev, err := s.db.CreateAgentEvent(ctx, model.AgentEvent{
		WorkspaceID: workspaceID,
		Agent:       agentName,
		Action:      action,
		Input:       input,
		Status:      model.AgentEventDraft,
	})
	if err != nil {
		return model.AgentEvent{}, fmt.Errorf("propose: %w", err)
	}

	s.logger.Info("agent event proposed",
		"event_id", ev.ID, "workspace_id", workspaceID, "agent", agentName, "action", action)
	s.notify(ctx, ev)
	return ev, nil
}

// CreateDraft inserts an event with a caller-supplied action. Status
// defaults to draft; any valid status value is accepted, and output may be
// pre-set for manual entry.
func (s *Service) CreateDraft(ctx context.Context, req model.CreateAgentEventRequest) (model.AgentEvent, error) {
	status := model.AgentEventDraft
	if req.Status != nil {
		status = *req.Status
		if !status.Valid() {
			return model.AgentEvent{}, fmt.Errorf("create draft: unknown status %q: %w", string(status), agent.ErrInvalidInput)
		}
	}

	ev, err := s.db.CreateAgentEvent(ctx, model.AgentEvent{
		WorkspaceID: req.WorkspaceID,
		Agent:       req.Agent,
		Action:      req.Action,
		Input:       req.Input,
		Output:      req.Output,
		Status:      status,
	})
	if err != nil {
		return model.AgentEvent{}, fmt.Errorf("create draft: %w", err)
	}

	s.logger.Info("agent event created",
		"event_id", ev.ID, "workspace_id", ev.WorkspaceID, "agent", ev.Agent, "action", ev.Action, "status", ev.Status)
	s.notify(ctx, ev)
	return ev, nil
}

// Patch overwrites whichever of status/output the caller supplied. There
// is no transition check: patch works on any event, terminal included, and
// is the escape hatch that moves draft → awaiting_confirmation. Only the
// status value itself is validated; input is immutable and not patchable.
func (s *Service) Patch(ctx context.Context, id uuid.UUID, req model.PatchAgentEventRequest) (model.AgentEvent, error) {
	if req.Status != nil && !req.Status.Valid() {
		return model.AgentEvent{}, fmt.Errorf("patch: unknown status %q: %w", string(*req.Status), agent.ErrInvalidInput)
	}

	ev, err := s.db.UpdateAgentEvent(ctx, id, req.Output, req.Status)
	if err != nil {
		return model.AgentEvent{}, fmt.Errorf("patch: %w", err)
	}

	s.logger.Info("agent event patched", "event_id", id, "status", ev.Status)
	s.notify(ctx, ev)
	return ev, nil
}

// Confirm executes an awaiting_confirmation event. The executor's writes
// and the status claim share one transaction, so of N concurrent confirms
// exactly one executes the side effect; every loser gets ErrInvalidState.
// An execution failure moves the event to error with the failure recorded
// in output, then the original error is returned: after any confirm
// attempt the event is terminal, never still awaiting.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (model.AgentEvent, error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		s.confirmDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
		s.confirmCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}()

	ev, err := s.db.GetAgentEvent(ctx, id)
	if err != nil {
		return model.AgentEvent{}, fmt.Errorf("confirm: %w", err)
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("kaigi.event_id", id.String()),
		attribute.String("kaigi.agent", ev.Agent),
		attribute.String("kaigi.action", ev.Action),
	)

	if ev.Status != model.AgentEventAwaitingConfirmation {
		outcome = "invalid_state"
		return model.AgentEvent{}, fmt.Errorf("confirm: agent event %s is %s: %w", id, ev.Status, ErrInvalidState)
	}

	ex, err := s.router.ResolveExecutor(ev.Agent, ev.Action)
	if err != nil {
		outcome = "unsupported"
		s.failEvent(ctx, ev, err.Error())
		return model.AgentEvent{}, fmt.Errorf("confirm: %w", err)
	}

	// Serialization failures and deadlocks roll the whole transaction
	// back, and the claim re-checks status on retry, so a retry can never
	// double-execute.
	var executed model.AgentEvent
	err = storage.WithRetry(ctx, 2, 25*time.Millisecond, func() error {
		var execErr error
		executed, execErr = s.execute(ctx, ex, ev)
		return execErr
	})
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			// Lost the claim race: the winner owns the terminal state.
			outcome = "invalid_state"
			return model.AgentEvent{}, fmt.Errorf("confirm: %w", err)
		}
		s.failEvent(ctx, ev, err.Error())
		return model.AgentEvent{}, fmt.Errorf("confirm: %w", err)
	}

	outcome = "executed"
	s.logger.Info("agent event executed",
		"event_id", id, "workspace_id", ev.WorkspaceID, "agent", ev.Agent, "action", ev.Action)
	s.notify(ctx, executed)
	return executed, nil
}

// execute claims the event and runs its executor in one transaction.
// A false claim means another confirmer already resolved the event.
func (s *Service) execute(ctx context.Context, ex agent.Executor, ev model.AgentEvent) (model.AgentEvent, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return model.AgentEvent{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	claimed, err := storage.ClaimAgentEventTx(ctx, tx, ev.ID)
	if err != nil {
		return model.AgentEvent{}, err
	}
	if !claimed {
		return model.AgentEvent{}, fmt.Errorf("agent event %s was already resolved: %w", ev.ID, ErrInvalidState)
	}

	output, err := ex.Execute(ctx, tx, ev)
	if err != nil {
		return model.AgentEvent{}, err
	}

	if err := storage.SetAgentEventOutputTx(ctx, tx, ev.ID, output); err != nil {
		return model.AgentEvent{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.AgentEvent{}, fmt.Errorf("commit: %w", err)
	}

	ev.Status = model.AgentEventExecuted
	ev.Output = output
	return ev, nil
}

// failEvent moves the event to error with the failure detail, best-effort:
// a failure here is logged, never propagated, so it cannot mask the
// primary error. The underlying write is conditional on
// awaiting_confirmation and no-ops against rows already terminal.
func (s *Service) failEvent(ctx context.Context, ev model.AgentEvent, detail string) {
	if err := s.db.MarkAgentEventError(ctx, ev.ID, detail); err != nil {
		s.logger.Error("agentflow: mark agent event error", "event_id", ev.ID, "error", err)
		return
	}
	ev.Status = model.AgentEventError
	ev.Output = map[string]any{"error": detail}
	s.notify(ctx, ev)
}

// Get returns a single event.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (model.AgentEvent, error) {
	ev, err := s.db.GetAgentEvent(ctx, id)
	if err != nil {
		return model.AgentEvent{}, fmt.Errorf("get agent event: %w", err)
	}
	return ev, nil
}

// List returns a workspace's events newest-first, optionally filtered by
// status.
func (s *Service) List(ctx context.Context, workspaceID uuid.UUID, status *model.AgentEventStatus, limit, offset int) ([]model.AgentEvent, int, error) {
	if status != nil && !status.Valid() {
		return nil, 0, fmt.Errorf("list agent events: unknown status %q: %w", string(*status), agent.ErrInvalidInput)
	}
	events, total, err := s.db.ListAgentEvents(ctx, workspaceID, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list agent events: %w", err)
	}
	return events, total, nil
}

// notify publishes a lifecycle change for SSE subscribers. Non-fatal.
func (s *Service) notify(ctx context.Context, ev model.AgentEvent) {
	payload, err := json.Marshal(map[string]any{
		"event_id":     ev.ID,
		"workspace_id": ev.WorkspaceID,
		"agent":        ev.Agent,
		"action":       ev.Action,
		"status":       ev.Status,
	})
	if err != nil {
		s.logger.Error("agentflow: marshal notify payload", "error", err)
		return
	}
	if err := s.db.Notify(ctx, storage.ChannelAgentEvents, string(payload)); err != nil {
		s.logger.Error("agentflow: notify subscribers", "error", err)
	}
}
