package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ashita-ai/kaigi/internal/model"
)

// HandleCreateUser handles POST /v1/users.
func (h *Handlers) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "a valid email is required")
		return
	}
	if req.DisplayName == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "display_name is required")
		return
	}

	u, err := h.db.CreateUser(r.Context(), model.User{
		Email:       req.Email,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, u)
}

// HandleGetUser handles GET /v1/users/{user_id}.
func (h *Handlers) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "user_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	u, err := h.db.GetUser(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

// HandleListUsers handles GET /v1/users.
func (h *Handlers) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)
	offset := queryOffset(r)

	users, total, err := h.db.ListUsers(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeListJSON(w, r, users, total, limit, offset)
}

// HandleCreateWorkspace handles POST /v1/workspaces.
func (h *Handlers) HandleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req model.CreateWorkspaceRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name is required")
		return
	}
	if req.OwnerID == uuid.Nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "owner_id is required")
		return
	}

	ws, err := h.db.CreateWorkspace(r.Context(), model.Workspace{
		Name:    req.Name,
		OwnerID: req.OwnerID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, ws)
}

// HandleGetWorkspace handles GET /v1/workspaces/{workspace_id}.
func (h *Handlers) HandleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "workspace_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	ws, err := h.db.GetWorkspace(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ws)
}

// HandleListWorkspaces handles GET /v1/workspaces.
func (h *Handlers) HandleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)
	offset := queryOffset(r)

	wss, total, err := h.db.ListWorkspaces(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeListJSON(w, r, wss, total, limit, offset)
}

// HandleDeleteWorkspace handles DELETE /v1/workspaces/{workspace_id}.
// Deletion cascades to the workspace's notes, tasks, reminders, and agent
// events.
func (h *Handlers) HandleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "workspace_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if err := h.db.DeleteWorkspace(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
