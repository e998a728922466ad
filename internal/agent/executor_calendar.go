package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kaigi/internal/model"
	"github.com/ashita-ai/kaigi/internal/service/calendar"
	"github.com/ashita-ai/kaigi/internal/storage"
)

// CreateCalendarEventExecutor pushes a SchedulerAgent proposal to the
// external calendar and records a pending reminder for the event start.
// The reminder insert shares the confirmation transaction; the calendar
// call does not, so a post-call rollback can leave an orphaned external
// event. Accepted: the bridge treats creates as idempotent drafts.
type CreateCalendarEventExecutor struct {
	Calendar calendar.Client
}

type createCalendarEventInput struct {
	Title     string   `json:"title"`
	StartsAt  string   `json:"starts_at"`
	EndsAt    string   `json:"ends_at"`
	Attendees []string `json:"attendees"`
}

func (e *CreateCalendarEventExecutor) Execute(ctx context.Context, tx pgx.Tx, ev model.AgentEvent) (map[string]any, error) {
	var in createCalendarEventInput
	if err := decodeInput(ev.Input, &in); err != nil {
		return nil, fmt.Errorf("create calendar event: %w", err)
	}
	if err := model.ValidateTitle(in.Title); err != nil {
		return nil, fmt.Errorf("create calendar event: %v: %w", err, ErrInvalidInput)
	}
	if in.StartsAt == "" {
		return nil, fmt.Errorf("create calendar event: starts_at is required: %w", ErrInvalidInput)
	}
	starts, err := time.Parse(time.RFC3339, in.StartsAt)
	if err != nil {
		return nil, fmt.Errorf("create calendar event: starts_at must be RFC3339: %w", ErrInvalidInput)
	}
	ends := starts.Add(time.Hour)
	if in.EndsAt != "" {
		ends, err = time.Parse(time.RFC3339, in.EndsAt)
		if err != nil {
			return nil, fmt.Errorf("create calendar event: ends_at must be RFC3339: %w", ErrInvalidInput)
		}
		if ends.Before(starts) {
			return nil, fmt.Errorf("create calendar event: ends_at precedes starts_at: %w", ErrInvalidInput)
		}
	}

	calendarEventID, err := e.Calendar.CreateEvent(ctx, calendar.Event{
		WorkspaceID: ev.WorkspaceID,
		Title:       in.Title,
		StartsAt:    starts,
		EndsAt:      ends,
		Attendees:   in.Attendees,
	})
	if err != nil {
		return nil, fmt.Errorf("create calendar event: %w", err)
	}

	reminder, err := storage.CreateReminderTx(ctx, tx, model.Reminder{
		WorkspaceID: ev.WorkspaceID,
		RemindAt:    starts,
		Message:     in.Title,
		Status:      model.ReminderStatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("create calendar event: reminder: %w", err)
	}

	return map[string]any{
		"calendar_event_id": calendarEventID,
		"reminder_id":       reminder.ID.String(),
		"message":           "Calendar event created successfully",
	}, nil
}
