// Package kaigi provides a Go client for the Kaigi workspace API.
//
// The client covers the full HTTP surface: users, workspaces, notes,
// tasks, reminders, agent events (propose, confirm, patch), transcript
// ingestion, and note search.
//
// Basic usage:
//
//	client := kaigi.NewClient(kaigi.Config{BaseURL: "http://localhost:8080"})
//	ev, err := client.ProposeAction(ctx, workspaceID, "TaskAgent", map[string]any{
//		"title": "Follow up with legal",
//	})
package kaigi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the Kaigi server URL, e.g. "http://localhost:8080".
	BaseURL string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// Timeout for requests when no custom HTTPClient is provided.
	// Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is a Kaigi API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Kaigi API client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: httpClient,
	}
}

// --- Users ---

// CreateUser registers a new user.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	var u User
	if err := c.post(ctx, "/v1/users", req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser fetches a user by ID.
func (c *Client) GetUser(ctx context.Context, userID uuid.UUID) (*User, error) {
	var u User
	if err := c.get(ctx, "/v1/users/"+userID.String(), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns a page of users.
func (c *Client) ListUsers(ctx context.Context, limit, offset int) (*List[User], error) {
	return getList[User](ctx, c, "/v1/users"+pageQuery(limit, offset))
}

// --- Workspaces ---

// CreateWorkspace creates a workspace owned by the given user.
func (c *Client) CreateWorkspace(ctx context.Context, req CreateWorkspaceRequest) (*Workspace, error) {
	var ws Workspace
	if err := c.post(ctx, "/v1/workspaces", req, &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

// GetWorkspace fetches a workspace by ID.
func (c *Client) GetWorkspace(ctx context.Context, workspaceID uuid.UUID) (*Workspace, error) {
	var ws Workspace
	if err := c.get(ctx, "/v1/workspaces/"+workspaceID.String(), &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

// ListWorkspaces returns a page of workspaces.
func (c *Client) ListWorkspaces(ctx context.Context, limit, offset int) (*List[Workspace], error) {
	return getList[Workspace](ctx, c, "/v1/workspaces"+pageQuery(limit, offset))
}

// DeleteWorkspace deletes a workspace and everything in it.
func (c *Client) DeleteWorkspace(ctx context.Context, workspaceID uuid.UUID) error {
	return c.doDelete(ctx, "/v1/workspaces/"+workspaceID.String())
}

// --- Notes ---

// CreateNote creates a note in a workspace.
func (c *Client) CreateNote(ctx context.Context, workspaceID uuid.UUID, req CreateNoteRequest) (*Note, error) {
	var n Note
	if err := c.post(ctx, "/v1/workspaces/"+workspaceID.String()+"/notes", req, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// GetNote fetches a note by ID.
func (c *Client) GetNote(ctx context.Context, noteID uuid.UUID) (*Note, error) {
	var n Note
	if err := c.get(ctx, "/v1/notes/"+noteID.String(), &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListNotes returns a page of a workspace's notes, newest first.
func (c *Client) ListNotes(ctx context.Context, workspaceID uuid.UUID, limit, offset int) (*List[Note], error) {
	return getList[Note](ctx, c, "/v1/workspaces/"+workspaceID.String()+"/notes"+pageQuery(limit, offset))
}

// UpdateNote applies a partial update to a note.
func (c *Client) UpdateNote(ctx context.Context, noteID uuid.UUID, req UpdateNoteRequest) (*Note, error) {
	var n Note
	if err := c.patch(ctx, "/v1/notes/"+noteID.String(), req, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// DeleteNote deletes a note.
func (c *Client) DeleteNote(ctx context.Context, noteID uuid.UUID) error {
	return c.doDelete(ctx, "/v1/notes/"+noteID.String())
}

// SearchNotes runs a semantic search over a workspace's notes.
func (c *Client) SearchNotes(ctx context.Context, workspaceID uuid.UUID, query string, limit int) ([]NoteMatch, error) {
	body := map[string]any{"query": query}
	if limit > 0 {
		body["limit"] = limit
	}
	var matches []NoteMatch
	if err := c.post(ctx, "/v1/workspaces/"+workspaceID.String()+"/search/notes", body, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// --- Tasks ---

// CreateTask creates a task in a workspace.
func (c *Client) CreateTask(ctx context.Context, workspaceID uuid.UUID, req CreateTaskRequest) (*Task, error) {
	var t Task
	if err := c.post(ctx, "/v1/workspaces/"+workspaceID.String()+"/tasks", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTask fetches a task by ID.
func (c *Client) GetTask(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	var t Task
	if err := c.get(ctx, "/v1/tasks/"+taskID.String(), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasks returns a page of a workspace's tasks, optionally filtered
// by status (todo, doing, done).
func (c *Client) ListTasks(ctx context.Context, workspaceID uuid.UUID, status string, limit, offset int) (*List[Task], error) {
	q := pageValues(limit, offset)
	if status != "" {
		q.Set("status", status)
	}
	path := "/v1/workspaces/" + workspaceID.String() + "/tasks"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	return getList[Task](ctx, c, path)
}

// UpdateTask applies a partial update to a task.
func (c *Client) UpdateTask(ctx context.Context, taskID uuid.UUID, req UpdateTaskRequest) (*Task, error) {
	var t Task
	if err := c.patch(ctx, "/v1/tasks/"+taskID.String(), req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	return c.doDelete(ctx, "/v1/tasks/"+taskID.String())
}

// --- Reminders ---

// CreateReminder schedules a reminder in a workspace.
func (c *Client) CreateReminder(ctx context.Context, workspaceID uuid.UUID, req CreateReminderRequest) (*Reminder, error) {
	var rem Reminder
	if err := c.post(ctx, "/v1/workspaces/"+workspaceID.String()+"/reminders", req, &rem); err != nil {
		return nil, err
	}
	return &rem, nil
}

// ListReminders returns a page of a workspace's reminders.
func (c *Client) ListReminders(ctx context.Context, workspaceID uuid.UUID, limit, offset int) (*List[Reminder], error) {
	return getList[Reminder](ctx, c, "/v1/workspaces/"+workspaceID.String()+"/reminders"+pageQuery(limit, offset))
}

// CancelReminder cancels a pending reminder.
func (c *Client) CancelReminder(ctx context.Context, reminderID uuid.UUID) error {
	return c.doDelete(ctx, "/v1/reminders/"+reminderID.String())
}

// --- Agent events ---

// ProposeAction stages an agent proposal awaiting human confirmation.
// The action is resolved server-side from the agent name.
func (c *Client) ProposeAction(ctx context.Context, workspaceID uuid.UUID, agent string, input map[string]any) (*AgentEvent, error) {
	body := map[string]any{"agent": agent}
	if input != nil {
		body["input"] = input
	}
	var ev AgentEvent
	if err := c.post(ctx, "/v1/workspaces/"+workspaceID.String()+"/agent/proposals", body, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// CreateAgentEvent records an agent event directly, defaulting to draft
// status.
func (c *Client) CreateAgentEvent(ctx context.Context, req CreateAgentEventRequest) (*AgentEvent, error) {
	var ev AgentEvent
	if err := c.post(ctx, "/v1/agent/events", req, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListAgentEvents returns a page of a workspace's agent events, newest
// first, optionally filtered by status.
func (c *Client) ListAgentEvents(ctx context.Context, workspaceID uuid.UUID, status string, limit, offset int) (*List[AgentEvent], error) {
	q := pageValues(limit, offset)
	if status != "" {
		q.Set("status", status)
	}
	path := "/v1/workspaces/" + workspaceID.String() + "/agent/events"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	return getList[AgentEvent](ctx, c, path)
}

// GetAgentEvent fetches an agent event by ID.
func (c *Client) GetAgentEvent(ctx context.Context, eventID uuid.UUID) (*AgentEvent, error) {
	var ev AgentEvent
	if err := c.get(ctx, "/v1/agent/events/"+eventID.String(), &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// PatchAgentEvent updates an event's output or status. Input is
// immutable.
func (c *Client) PatchAgentEvent(ctx context.Context, eventID uuid.UUID, req PatchAgentEventRequest) (*AgentEvent, error) {
	var ev AgentEvent
	if err := c.patch(ctx, "/v1/agent/events/"+eventID.String(), req, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// ConfirmAgentEvent executes an event that is awaiting confirmation.
// Exactly one of N concurrent confirms wins; the rest fail with a
// conflict (IsConflict). Execution failures surface as the event moving
// to error status.
func (c *Client) ConfirmAgentEvent(ctx context.Context, eventID uuid.UUID) (*AgentEvent, error) {
	var ev AgentEvent
	if err := c.post(ctx, "/v1/agent/events/"+eventID.String()+"/confirm", nil, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// --- Meetings ---

// IngestTranscript turns a meeting transcript into a note plus staged
// proposals.
func (c *Client) IngestTranscript(ctx context.Context, workspaceID uuid.UUID, title, transcript string) (*IngestTranscriptResponse, error) {
	body := map[string]any{"title": title, "transcript": transcript}
	var resp IngestTranscriptResponse
	if err := c.post(ctx, "/v1/workspaces/"+workspaceID.String()+"/meetings/transcripts", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Health ---

// Health reports server and dependency status.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var hr HealthResponse
	if err := c.get(ctx, "/health", &hr); err != nil {
		return nil, err
	}
	return &hr, nil
}

// --- HTTP helpers ---

// apiEnvelope matches the server's response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// listEnvelope matches the server's list response wrapper.
type listEnvelope struct {
	Data    json.RawMessage `json:"data"`
	Total   int             `json:"total"`
	HasMore bool            `json:"has_more"`
}

// apiErrorResponse matches the server's error wrapper.
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, result)
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) patch(ctx context.Context, path string, body, result any) error {
	return c.doRequest(ctx, http.MethodPatch, path, body, result)
}

func (c *Client) doDelete(ctx context.Context, path string) error {
	return c.doRequest(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("kaigi: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("kaigi: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kaigi: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, result)
}

func handleResponse(resp *http.Response, result any) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("kaigi: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, raw)
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	// Responses arrive wrapped in {"data": ...}; fall back to the raw
	// body if the envelope is absent.
	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Data != nil {
		raw = envelope.Data
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("kaigi: decode response: %w", err)
	}
	return nil
}

func parseErrorResponse(statusCode int, raw []byte) error {
	var errResp apiErrorResponse
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error.Message != "" {
		return &Error{
			StatusCode: statusCode,
			Code:       errResp.Error.Code,
			Message:    errResp.Error.Message,
		}
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = http.StatusText(statusCode)
	}
	return &Error{StatusCode: statusCode, Message: msg}
}

// getList fetches a list endpoint and unwraps its pagination envelope.
func getList[T any](ctx context.Context, c *Client, path string) (*List[T], error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("kaigi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kaigi: GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kaigi: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, raw)
	}

	var envelope listEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("kaigi: decode list response: %w", err)
	}
	out := &List[T]{Total: envelope.Total, HasMore: envelope.HasMore}
	if envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, &out.Items); err != nil {
			return nil, fmt.Errorf("kaigi: decode list items: %w", err)
		}
	}
	return out, nil
}

func pageValues(limit, offset int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return q
}

func pageQuery(limit, offset int) string {
	if enc := pageValues(limit, offset).Encode(); enc != "" {
		return "?" + enc
	}
	return ""
}
