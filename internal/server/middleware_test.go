package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kaigi/internal/agent"
	"github.com/ashita-ai/kaigi/internal/model"
	"github.com/ashita-ai/kaigi/internal/service/agentflow"
	"github.com/ashita-ai/kaigi/internal/storage"
	"github.com/ashita-ai/kaigi/internal/testutil"
)

func testHandlers() *Handlers {
	return NewHandlers(HandlersDeps{Logger: testutil.TestLogger()})
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) model.APIError {
	t.Helper()
	var apiErr model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestWriteServiceError_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid input", fmt.Errorf("create note: %w", agent.ErrInvalidInput), http.StatusBadRequest, model.ErrCodeInvalidInput},
		{"foreign key", fmt.Errorf("propose: %w", storage.ErrForeignKey), http.StatusBadRequest, model.ErrCodeInvalidInput},
		{"not found", fmt.Errorf("get note: %w", storage.ErrNotFound), http.StatusNotFound, model.ErrCodeNotFound},
		{"invalid state", fmt.Errorf("confirm: %w", agentflow.ErrInvalidState), http.StatusConflict, model.ErrCodeConflict},
		{"duplicate", fmt.Errorf("create user: %w", storage.ErrDuplicate), http.StatusConflict, model.ErrCodeConflict},
		{"unsupported action", fmt.Errorf("confirm: %w", agent.ErrUnsupportedAction), http.StatusUnprocessableEntity, model.ErrCodeUnsupportedAction},
	}

	h := testHandlers()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)

			h.writeServiceError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			apiErr := decodeAPIError(t, rec)
			assert.Equal(t, tt.wantCode, apiErr.Error.Code)
			assert.Equal(t, tt.err.Error(), apiErr.Error.Message)
		})
	}
}

func TestWriteServiceError_InternalIsOpaque(t *testing.T) {
	h := testHandlers()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	h.writeServiceError(rec, req, fmt.Errorf("pq: connection refused at 10.0.0.3"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	apiErr := decodeAPIError(t, rec)
	assert.Equal(t, model.ErrCodeInternalError, apiErr.Error.Code)
	assert.Equal(t, "internal server error", apiErr.Error.Message)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3", "internal detail never leaks")
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
		var p payload
		require.NoError(t, decodeJSON(httptest.NewRecorder(), req, &p, 1024))
		assert.Equal(t, "ok", p.Name)
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok","bogus":1}`))
		var p payload
		err := decodeJSON(httptest.NewRecorder(), req, &p, 1024)
		require.Error(t, err)

		rec := httptest.NewRecorder()
		handleDecodeError(rec, req, err)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		big := `{"name":"` + strings.Repeat("x", 100) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
		var p payload
		err := decodeJSON(httptest.NewRecorder(), req, &p, 16)
		require.Error(t, err)

		rec := httptest.NewRecorder()
		handleDecodeError(rec, req, err)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestQueryLimitAndOffset(t *testing.T) {
	mk := func(query string) *http.Request {
		return httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	}

	assert.Equal(t, 50, queryLimit(mk(""), 50), "default applies")
	assert.Equal(t, 10, queryLimit(mk("limit=10"), 50))
	assert.Equal(t, 1, queryLimit(mk("limit=0"), 50), "clamped to 1")
	assert.Equal(t, 1, queryLimit(mk("limit=-5"), 50))
	assert.Equal(t, maxQueryLimit, queryLimit(mk("limit=99999"), 50))
	assert.Equal(t, 50, queryLimit(mk("limit=abc"), 50), "garbage falls back to default")

	assert.Equal(t, 0, queryOffset(mk("")))
	assert.Equal(t, 25, queryOffset(mk("offset=25")))
	assert.Equal(t, 0, queryOffset(mk("offset=-1")))
	assert.Equal(t, maxQueryOffset, queryOffset(mk("offset=9999999")))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	})

	t.Run("passthrough", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "client-chosen")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, "client-chosen", seen)
		assert.Equal(t, "client-chosen", rec.Header().Get("X-Request-ID"))
	})
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(testutil.TestLogger(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	apiErr := decodeAPIError(t, rec)
	assert.Equal(t, model.ErrCodeInternalError, apiErr.Error.Code)
}

func TestStatusWriterUnwrap(t *testing.T) {
	// The response controller must reach Flush through the logging and
	// tracing wrappers, or SSE streaming silently buffers.
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rc := http.NewResponseController(sw)
	require.NoError(t, rc.Flush())
	assert.True(t, rec.Flushed)
}
