package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kaigi/internal/model"
)

func (s *Server) registerTools() {
	// kaigi_propose_action — stage an agent proposal for human review.
	s.mcpServer.AddTool(
		mcplib.NewTool("kaigi_propose_action",
			mcplib.WithDescription(`Stage an action proposal for human review.

Nothing you propose takes effect on its own: a proposal is a draft agent
event that a human must confirm through the Kaigi UI or HTTP API before
any side effect runs. There is no confirm tool here — confirmation is
human-only.

The action is resolved from your agent name (e.g. TaskAgent proposes
create_task, SchedulerAgent proposes create_calendar_event). Unknown
agent names still succeed with the generic propose_action.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("workspace_id",
				mcplib.Description("Workspace UUID the proposal belongs to"),
				mcplib.Required(),
			),
			mcplib.WithString("agent",
				mcplib.Description("Your agent name, e.g. TaskAgent, MeetingNotesAgent, SchedulerAgent, KnowledgeAgent. Any string is accepted."),
				mcplib.Required(),
			),
			mcplib.WithString("input_json",
				mcplib.Description("Action parameters as a JSON object, e.g. {\"title\": \"Follow up with legal\"}"),
			),
		),
		s.handleProposeAction,
	)

	// kaigi_list_agent_events — inspect a workspace's event log.
	s.mcpServer.AddTool(
		mcplib.NewTool("kaigi_list_agent_events",
			mcplib.WithDescription(`List a workspace's agent events, newest first.

Use this to see what has been proposed, what is awaiting confirmation,
and what a human already executed or rejected. Each event carries its
agent, action, input, output, and lifecycle status.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("workspace_id",
				mcplib.Description("Workspace UUID"),
				mcplib.Required(),
			),
			mcplib.WithString("status",
				mcplib.Description("Optional status filter: draft, awaiting_confirmation, executed, or error"),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum results to return"),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(20),
			),
		),
		s.handleListAgentEvents,
	)

	// kaigi_get_agent_event — fetch one event by ID.
	s.mcpServer.AddTool(
		mcplib.NewTool("kaigi_get_agent_event",
			mcplib.WithDescription(`Fetch a single agent event by ID.

Use this to poll the outcome of a proposal you staged: once a human
confirms it, status moves to executed and output carries the result;
a failed execution moves it to error with the failure detail.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("event_id",
				mcplib.Description("Agent event UUID"),
				mcplib.Required(),
			),
		),
		s.handleGetAgentEvent,
	)

	// kaigi_search_notes — semantic search over workspace notes.
	s.mcpServer.AddTool(
		mcplib.NewTool("kaigi_search_notes",
			mcplib.WithDescription(`Search a workspace's notes by semantic similarity.

Describe what you're looking for in natural language; results are notes
ranked by relevance. When no embedding provider is configured the search
degrades to text matching.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("workspace_id",
				mcplib.Description("Workspace UUID"),
				mcplib.Required(),
			),
			mcplib.WithString("query",
				mcplib.Description("Natural language search query"),
				mcplib.Required(),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum results to return"),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(5),
			),
		),
		s.handleSearchNotes,
	)

	// kaigi_ingest_transcript — turn a meeting transcript into a note
	// plus staged proposals.
	s.mcpServer.AddTool(
		mcplib.NewTool("kaigi_ingest_transcript",
			mcplib.WithDescription(`Ingest a meeting transcript.

Creates a meeting note (summary, extracted entities, the raw transcript)
and stages one create_task proposal per detected action item plus an
extract_knowledge proposal for the note. The proposals await human
confirmation; no task or knowledge write happens until then.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("workspace_id",
				mcplib.Description("Workspace UUID"),
				mcplib.Required(),
			),
			mcplib.WithString("title",
				mcplib.Description("Meeting title, e.g. 'Weekly platform sync 2026-08-27'"),
				mcplib.Required(),
			),
			mcplib.WithString("transcript",
				mcplib.Description("The raw transcript text, speaker-labelled lines preferred"),
				mcplib.Required(),
			),
		),
		s.handleIngestTranscript,
	)
}

func (s *Server) handleProposeAction(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	workspaceID, err := uuid.Parse(request.GetString("workspace_id", ""))
	if err != nil {
		return errorResult("workspace_id must be a valid UUID"), nil
	}
	agentName := request.GetString("agent", "")
	if agentName == "" {
		return errorResult("agent is required"), nil
	}

	var input map[string]any
	if raw := request.GetString("input_json", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			return errorResult(fmt.Sprintf("input_json is not a JSON object: %v", err)), nil
		}
	}

	ev, err := s.flowSvc.Propose(ctx, workspaceID, agentName, input)
	if err != nil {
		return errorResult(fmt.Sprintf("propose failed: %v", err)), nil
	}

	resultData, _ := json.Marshal(map[string]any{
		"event_id": ev.ID,
		"action":   ev.Action,
		"status":   ev.Status,
	})
	return textResult(string(resultData)), nil
}

func (s *Server) handleListAgentEvents(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	workspaceID, err := uuid.Parse(request.GetString("workspace_id", ""))
	if err != nil {
		return errorResult("workspace_id must be a valid UUID"), nil
	}

	var status *model.AgentEventStatus
	if v := request.GetString("status", ""); v != "" {
		st := model.AgentEventStatus(v)
		status = &st
	}
	limit := request.GetInt("limit", 20)

	events, total, err := s.flowSvc.List(ctx, workspaceID, status, limit, 0)
	if err != nil {
		return errorResult(fmt.Sprintf("list failed: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(map[string]any{
		"events": events,
		"total":  total,
	}, "", "  ")
	return textResult(string(resultData)), nil
}

func (s *Server) handleGetAgentEvent(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	eventID, err := uuid.Parse(request.GetString("event_id", ""))
	if err != nil {
		return errorResult("event_id must be a valid UUID"), nil
	}

	ev, err := s.flowSvc.Get(ctx, eventID)
	if err != nil {
		return errorResult(fmt.Sprintf("get failed: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(ev, "", "  ")
	return textResult(string(resultData)), nil
}

func (s *Server) handleSearchNotes(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	workspaceID, err := uuid.Parse(request.GetString("workspace_id", ""))
	if err != nil {
		return errorResult("workspace_id must be a valid UUID"), nil
	}
	query := request.GetString("query", "")
	if query == "" {
		return errorResult("query is required"), nil
	}
	limit := request.GetInt("limit", 5)

	matches, err := s.noteSvc.Search(ctx, workspaceID, query, limit)
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(map[string]any{
		"matches": matches,
		"total":   len(matches),
	}, "", "  ")
	return textResult(string(resultData)), nil
}

func (s *Server) handleIngestTranscript(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	workspaceID, err := uuid.Parse(request.GetString("workspace_id", ""))
	if err != nil {
		return errorResult("workspace_id must be a valid UUID"), nil
	}

	resp, err := s.meetingSvc.IngestTranscript(ctx, workspaceID, model.IngestTranscriptRequest{
		Title:      request.GetString("title", ""),
		Transcript: request.GetString("transcript", ""),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("ingest failed: %v", err)), nil
	}

	proposalIDs := make([]uuid.UUID, len(resp.Proposals))
	for i, p := range resp.Proposals {
		proposalIDs[i] = p.ID
	}
	resultData, _ := json.MarshalIndent(map[string]any{
		"note_id":      resp.Note.ID,
		"note_title":   resp.Note.Title,
		"summary":      resp.Note.SummaryText,
		"proposal_ids": proposalIDs,
	}, "", "  ")
	return textResult(string(resultData)), nil
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
