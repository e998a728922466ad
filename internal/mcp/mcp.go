// Package mcp implements the Model Context Protocol server for Kaigi.
//
// The MCP server gives agent runtimes a programmatic surface for staging
// proposals, inspecting agent events, searching notes, and ingesting
// transcripts. There is deliberately no confirm tool: executing a staged
// action requires a human, and that path exists only in the HTTP API.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kaigi/internal/service/agentflow"
	"github.com/ashita-ai/kaigi/internal/service/meetings"
	"github.com/ashita-ai/kaigi/internal/service/notes"
)

// Server wraps the MCP server with Kaigi's service layer.
type Server struct {
	mcpServer  *mcpserver.MCPServer
	flowSvc    *agentflow.Service
	noteSvc    *notes.Service
	meetingSvc *meetings.Service
	logger     *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
func New(flowSvc *agentflow.Service, noteSvc *notes.Service, meetingSvc *meetings.Service, logger *slog.Logger) *Server {
	s := &Server{
		flowSvc:    flowSvc,
		noteSvc:    noteSvc,
		meetingSvc: meetingSvc,
		logger:     logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"kaigi",
		"0.1.0",
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// kaigi://workspaces/{id}/agent-events — a workspace's event list.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"kaigi://workspaces/{id}/agent-events",
			"Workspace Agent Events",
			mcplib.WithTemplateDescription("Agent events for a workspace, newest first"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleWorkspaceAgentEvents,
	)
}

func (s *Server) handleWorkspaceAgentEvents(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	workspaceID, err := workspaceIDFromURI(uri)
	if err != nil {
		return nil, fmt.Errorf("mcp: %w", err)
	}

	events, total, err := s.flowSvc.List(ctx, workspaceID, nil, 50, 0)
	if err != nil {
		return nil, fmt.Errorf("mcp: workspace agent events: %w", err)
	}

	data, err := json.MarshalIndent(map[string]any{
		"workspace_id": workspaceID,
		"events":       events,
		"total":        total,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal agent events: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// workspaceIDFromURI parses kaigi://workspaces/{id}/agent-events.
func workspaceIDFromURI(uri string) (uuid.UUID, error) {
	const prefix = "kaigi://workspaces/"
	rest, ok := strings.CutPrefix(uri, prefix)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid resource URI: %s", uri)
	}
	idStr, _, _ := strings.Cut(rest, "/")
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid workspace ID in URI %s: %w", uri, err)
	}
	return id, nil
}
