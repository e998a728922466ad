package kaigi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
}

func envelope(t *testing.T, w http.ResponseWriter, status int, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": data}))
}

func TestProposeAction(t *testing.T) {
	workspaceID := uuid.New()
	eventID := uuid.New()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/workspaces/"+workspaceID.String()+"/agent/proposals", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "TaskAgent", body["agent"])

		envelope(t, w, http.StatusCreated, AgentEvent{
			ID:          eventID,
			WorkspaceID: workspaceID,
			Agent:       "TaskAgent",
			Action:      "create_task",
			Status:      StatusAwaitingConfirmation,
		})
	})

	ev, err := client.ProposeAction(context.Background(), workspaceID, "TaskAgent",
		map[string]any{"title": "Follow up with legal"})
	require.NoError(t, err)
	assert.Equal(t, eventID, ev.ID)
	assert.Equal(t, "create_task", ev.Action)
	assert.Equal(t, StatusAwaitingConfirmation, ev.Status)
}

func TestConfirmAgentEvent(t *testing.T) {
	eventID := uuid.New()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/agent/events/"+eventID.String()+"/confirm", r.URL.Path)
		envelope(t, w, http.StatusOK, AgentEvent{
			ID:     eventID,
			Status: StatusExecuted,
			Output: map[string]any{"message": "Task created successfully"},
		})
	})

	ev, err := client.ConfirmAgentEvent(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, ev.Status)
	assert.Equal(t, "Task created successfully", ev.Output["message"])
}

func TestConfirmAgentEventConflict(t *testing.T) {
	eventID := uuid.New()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    CodeConflict,
				"message": "agent event is not awaiting confirmation",
			},
		})
	})

	_, err := client.ConfirmAgentEvent(context.Background(), eventID)
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeConflict, apiErr.Code)
	assert.Contains(t, apiErr.Message, "not awaiting confirmation")
}

func TestListAgentEvents(t *testing.T) {
	workspaceID := uuid.New()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/workspaces/"+workspaceID.String()+"/agent/events", r.URL.Path)
		assert.Equal(t, "awaiting_confirmation", r.URL.Query().Get("status"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []AgentEvent{
				{ID: uuid.New(), Status: StatusAwaitingConfirmation},
				{ID: uuid.New(), Status: StatusAwaitingConfirmation},
			},
			"total":    12,
			"has_more": true,
		})
	})

	list, err := client.ListAgentEvents(context.Background(), workspaceID, "awaiting_confirmation", 10, 0)
	require.NoError(t, err)
	assert.Len(t, list.Items, 2)
	assert.Equal(t, 12, list.Total)
	assert.True(t, list.HasMore)
}

func TestGetNoteNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": CodeNotFound, "message": "note not found"},
		})
	})

	_, err := client.GetNote(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflict(err))
}

func TestCreateAndUpdateNote(t *testing.T) {
	workspaceID := uuid.New()
	noteID := uuid.New()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			assert.Equal(t, "/v1/workspaces/"+workspaceID.String()+"/notes", r.URL.Path)
			envelope(t, w, http.StatusCreated, Note{
				ID:          noteID,
				WorkspaceID: workspaceID,
				Title:       "Design review",
				ContentMD:   "## Agenda",
			})
		case r.Method == http.MethodPatch:
			assert.Equal(t, "/v1/notes/"+noteID.String(), r.URL.Path)
			var body UpdateNoteRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.NotNil(t, body.AppendMD)
			envelope(t, w, http.StatusOK, Note{
				ID:        noteID,
				Title:     "Design review",
				ContentMD: "## Agenda\n\n- decision logged",
			})
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})

	ctx := context.Background()
	n, err := client.CreateNote(ctx, workspaceID, CreateNoteRequest{Title: "Design review", ContentMD: "## Agenda"})
	require.NoError(t, err)
	assert.Equal(t, noteID, n.ID)

	appendMD := "- decision logged"
	updated, err := client.UpdateNote(ctx, noteID, UpdateNoteRequest{AppendMD: &appendMD})
	require.NoError(t, err)
	assert.Contains(t, updated.ContentMD, "decision logged")
}

func TestDeleteWorkspaceNoContent(t *testing.T) {
	workspaceID := uuid.New()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.DeleteWorkspace(context.Background(), workspaceID))
}

func TestSearchNotes(t *testing.T) {
	workspaceID := uuid.New()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/workspaces/"+workspaceID.String()+"/search/notes", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pricing decisions", body["query"])

		envelope(t, w, http.StatusOK, []NoteMatch{
			{Note: Note{ID: uuid.New(), Title: "Q3 pricing sync"}, Score: 0.91},
		})
	})

	matches, err := client.SearchNotes(context.Background(), workspaceID, "pricing decisions", 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Q3 pricing sync", matches[0].Note.Title)
	assert.InDelta(t, 0.91, matches[0].Score, 0.001)
}

func TestRateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": CodeRateLimited, "message": "rate limit exceeded"},
		})
	})

	_, err := client.ProposeAction(context.Background(), uuid.New(), "TaskAgent", nil)
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
}

func TestErrorFallbackNonJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	})

	_, err := client.Health(context.Background())
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream unavailable", apiErr.Message)
}
