package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ashita-ai/kaigi/internal/model"
)

// HandleProposeAction handles POST /v1/workspaces/{workspace_id}/agent/proposals.
// The resulting event's action is resolved by the router; unknown agents
// fall back to the generic propose_action.
func (h *Handlers) HandleProposeAction(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := pathUUID(r, "workspace_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.ProposeActionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	req.Agent = strings.TrimSpace(req.Agent)
	if req.Agent == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "agent is required")
		return
	}
	if len(req.Agent) > model.MaxAgentLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "agent name too long")
		return
	}

	ev, err := h.flowSvc.Propose(r.Context(), workspaceID, req.Agent, req.Input)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, ev)
}

// HandleCreateAgentEvent handles POST /v1/agent/events. Unlike proposals,
// the caller supplies the action directly and may pre-set status/output.
func (h *Handlers) HandleCreateAgentEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateAgentEventRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	if req.WorkspaceID == uuid.Nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "workspace_id is required")
		return
	}
	req.Agent = strings.TrimSpace(req.Agent)
	req.Action = strings.TrimSpace(req.Action)
	if req.Agent == "" || req.Action == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "agent and action are required")
		return
	}
	if len(req.Agent) > model.MaxAgentLen || len(req.Action) > model.MaxActionLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "agent or action too long")
		return
	}

	ev, err := h.flowSvc.CreateDraft(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, ev)
}

// HandleListAgentEvents handles GET /v1/workspaces/{workspace_id}/agent/events?status=.
func (h *Handlers) HandleListAgentEvents(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := pathUUID(r, "workspace_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var status *model.AgentEventStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := model.AgentEventStatus(v)
		status = &s
	}

	limit := queryLimit(r, 50)
	offset := queryOffset(r)

	events, total, err := h.flowSvc.List(r.Context(), workspaceID, status, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeListJSON(w, r, events, total, limit, offset)
}

// HandleGetAgentEvent handles GET /v1/agent/events/{event_id}.
func (h *Handlers) HandleGetAgentEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "event_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	ev, err := h.flowSvc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ev)
}

// HandlePatchAgentEvent handles PATCH /v1/agent/events/{event_id}.
func (h *Handlers) HandlePatchAgentEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "event_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.PatchAgentEventRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	ev, err := h.flowSvc.Patch(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ev)
}

// HandleConfirmAgentEvent handles POST /v1/agent/events/{event_id}/confirm.
// This is the only route that executes a staged action, and it is
// deliberately HTTP-only: the MCP surface has no confirm tool.
func (h *Handlers) HandleConfirmAgentEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "event_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	ev, err := h.flowSvc.Confirm(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ev)
}
