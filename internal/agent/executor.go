package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kaigi/internal/model"
)

// Executor performs exactly one domain mutation from a confirmed agent
// event's input payload and returns a small structured result for the
// event's output column.
//
// Executors run inside the confirmation transaction: their writes commit
// or roll back together with the event's status claim, so a crash cannot
// leave a task created while the event still says awaiting_confirmation.
type Executor interface {
	Execute(ctx context.Context, tx pgx.Tx, ev model.AgentEvent) (map[string]any, error)
}

// decodeInput maps an event's loosely-typed input onto an executor's typed
// payload struct, failing fast with ErrInvalidInput on type mismatches.
// Unknown keys are ignored. Each executor parses its payload up front so
// loosely-typed maps never travel deeper into domain logic.
func decodeInput(input map[string]any, dst any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode input: %v: %w", err, ErrInvalidInput)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("malformed input: %v: %w", err, ErrInvalidInput)
	}
	return nil
}
