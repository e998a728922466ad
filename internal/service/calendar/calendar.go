// Package calendar provides the external calendar gateway used by the
// scheduler agent's executor.
//
// Defines a Client interface with an HTTP bridge implementation and a
// logging fake. The fake is the default: it makes the confirm flow fully
// functional in deployments that have no calendar system wired up.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is a calendar event to create.
type Event struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Title       string    `json:"title"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Attendees   []string  `json:"attendees,omitempty"`
}

// Client creates events in an external calendar system.
// Implementations must be safe for concurrent use.
type Client interface {
	// CreateEvent creates the event and returns the provider's event ID.
	CreateEvent(ctx context.Context, ev Event) (string, error)
}

// HTTPClient posts events to a calendar bridge endpoint.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates a client for a calendar bridge reachable at baseURL.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type createEventResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// CreateEvent posts the event to the bridge and returns its event ID.
func (c *HTTPClient) CreateEvent(ctx context.Context, ev Event) (string, error) {
	reqBody, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("calendar: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/events", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("calendar: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calendar: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("calendar: read response: %w", err)
	}

	var result createEventResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("calendar: unmarshal response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("calendar: unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if result.ID == "" {
		return "", fmt.Errorf("calendar: bridge returned no event id")
	}
	return result.ID, nil
}

// LogClient records events to the log and fabricates IDs. Used when no
// calendar bridge is configured.
type LogClient struct {
	logger *slog.Logger
}

// NewLogClient creates the logging fake.
func NewLogClient(logger *slog.Logger) *LogClient {
	return &LogClient{logger: logger}
}

// CreateEvent logs the event and returns a generated ID.
func (c *LogClient) CreateEvent(_ context.Context, ev Event) (string, error) {
	id := "local-" + uuid.NewString()
	c.logger.Info("calendar: simulated event",
		"event_id", id,
		"workspace_id", ev.WorkspaceID,
		"title", ev.Title,
		"starts_at", ev.StartsAt,
		"attendees", len(ev.Attendees),
	)
	return id, nil
}
