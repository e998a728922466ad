package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kaigi/internal/ratelimit"
	"github.com/ashita-ai/kaigi/internal/search"
	"github.com/ashita-ai/kaigi/internal/service/agentflow"
	"github.com/ashita-ai/kaigi/internal/service/meetings"
	"github.com/ashita-ai/kaigi/internal/service/notes"
	"github.com/ashita-ai/kaigi/internal/storage"
)

// Server is the Kaigi HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a
// Server. Optional fields (nil-safe): Broker, Searcher, Limiter, MCPServer,
// OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	DB         *storage.DB
	FlowSvc    *agentflow.Service
	NoteSvc    *notes.Service
	MeetingSvc *meetings.Service
	Logger     *slog.Logger

	// Optional dependencies (nil = disabled).
	Broker    *Broker
	Searcher  search.Searcher
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// Optional embedded OpenAPI YAML.
	OpenAPISpec []byte
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		FlowSvc:             cfg.FlowSvc,
		NoteSvc:             cfg.NoteSvc,
		MeetingSvc:          cfg.MeetingSvc,
		Broker:              cfg.Broker,
		Searcher:            cfg.Searcher,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	// Proposals are the agent-facing write path; everything else is
	// human-paced and stays unthrottled.
	proposeRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Users.
	mux.HandleFunc("POST /v1/users", h.HandleCreateUser)
	mux.HandleFunc("GET /v1/users", h.HandleListUsers)
	mux.HandleFunc("GET /v1/users/{user_id}", h.HandleGetUser)

	// Workspaces.
	mux.HandleFunc("POST /v1/workspaces", h.HandleCreateWorkspace)
	mux.HandleFunc("GET /v1/workspaces", h.HandleListWorkspaces)
	mux.HandleFunc("GET /v1/workspaces/{workspace_id}", h.HandleGetWorkspace)
	mux.HandleFunc("DELETE /v1/workspaces/{workspace_id}", h.HandleDeleteWorkspace)

	// Notes.
	mux.HandleFunc("POST /v1/workspaces/{workspace_id}/notes", h.HandleCreateNote)
	mux.HandleFunc("GET /v1/workspaces/{workspace_id}/notes", h.HandleListNotes)
	mux.HandleFunc("GET /v1/notes/{note_id}", h.HandleGetNote)
	mux.HandleFunc("PATCH /v1/notes/{note_id}", h.HandlePatchNote)
	mux.HandleFunc("DELETE /v1/notes/{note_id}", h.HandleDeleteNote)
	mux.HandleFunc("POST /v1/workspaces/{workspace_id}/search/notes", h.HandleSearchNotes)

	// Tasks.
	mux.HandleFunc("POST /v1/workspaces/{workspace_id}/tasks", h.HandleCreateTask)
	mux.HandleFunc("GET /v1/workspaces/{workspace_id}/tasks", h.HandleListTasks)
	mux.HandleFunc("GET /v1/tasks/{task_id}", h.HandleGetTask)
	mux.HandleFunc("PATCH /v1/tasks/{task_id}", h.HandlePatchTask)
	mux.HandleFunc("DELETE /v1/tasks/{task_id}", h.HandleDeleteTask)

	// Reminders.
	mux.HandleFunc("POST /v1/workspaces/{workspace_id}/reminders", h.HandleCreateReminder)
	mux.HandleFunc("GET /v1/workspaces/{workspace_id}/reminders", h.HandleListReminders)
	mux.HandleFunc("DELETE /v1/reminders/{reminder_id}", h.HandleCancelReminder)

	// Agent events. Proposals are rate limited; the SSE stream is a
	// long-lived connection and registered without limits.
	mux.Handle("POST /v1/workspaces/{workspace_id}/agent/proposals",
		proposeRL(http.HandlerFunc(h.HandleProposeAction)))
	mux.HandleFunc("GET /v1/workspaces/{workspace_id}/agent/events", h.HandleListAgentEvents)
	mux.HandleFunc("POST /v1/agent/events", h.HandleCreateAgentEvent)
	mux.HandleFunc("GET /v1/agent/events/stream", h.HandleAgentEventStream)
	mux.HandleFunc("GET /v1/agent/events/{event_id}", h.HandleGetAgentEvent)
	mux.HandleFunc("PATCH /v1/agent/events/{event_id}", h.HandlePatchAgentEvent)
	mux.HandleFunc("POST /v1/agent/events/{event_id}/confirm", h.HandleConfirmAgentEvent)

	// Meetings.
	mux.HandleFunc("POST /v1/workspaces/{workspace_id}/meetings/transcripts", h.HandleIngestTranscript)

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// OpenAPI spec and health (no rate limit).
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// recovery → request ID → security headers → tracing → logging → handler.
	var handler http.Handler = mux
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(cfg.Logger, handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
