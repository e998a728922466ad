package server

import (
	"net/http"
	"strings"

	"github.com/ashita-ai/kaigi/internal/model"
)

// HandleCreateTask handles POST /v1/workspaces/{workspace_id}/tasks.
func (h *Handlers) HandleCreateTask(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := pathUUID(r, "workspace_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.CreateTaskRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	if err := model.ValidateTitle(req.Title); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if req.Priority != "" && !req.Priority.Valid() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown priority: "+string(req.Priority))
		return
	}

	t, err := h.db.CreateTask(r.Context(), model.Task{
		WorkspaceID:  workspaceID,
		Title:        req.Title,
		Description:  req.Description,
		Priority:     req.Priority,
		DueAt:        req.DueAt,
		AssigneeID:   req.AssigneeID,
		LinkedNoteID: req.LinkedNoteID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, t)
}

// HandleListTasks handles GET /v1/workspaces/{workspace_id}/tasks?status=.
func (h *Handlers) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := pathUUID(r, "workspace_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var status *model.TaskStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := model.TaskStatus(v)
		if !s.Valid() {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown status: "+v)
			return
		}
		status = &s
	}

	limit := queryLimit(r, 50)
	offset := queryOffset(r)

	ts, total, err := h.db.ListTasks(r.Context(), workspaceID, status, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeListJSON(w, r, ts, total, limit, offset)
}

// HandleGetTask handles GET /v1/tasks/{task_id}.
func (h *Handlers) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "task_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	t, err := h.db.GetTask(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

// HandlePatchTask handles PATCH /v1/tasks/{task_id}.
func (h *Handlers) HandlePatchTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "task_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.UpdateTaskRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	if req.Title != nil {
		if err := model.ValidateTitle(*req.Title); err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
			return
		}
	}
	if req.Status != nil && !req.Status.Valid() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown status: "+string(*req.Status))
		return
	}
	if req.Priority != nil && !req.Priority.Valid() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown priority: "+string(*req.Priority))
		return
	}

	t, err := h.db.UpdateTask(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

// HandleDeleteTask handles DELETE /v1/tasks/{task_id}.
func (h *Handlers) HandleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "task_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if err := h.db.DeleteTask(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateReminder handles POST /v1/workspaces/{workspace_id}/reminders.
func (h *Handlers) HandleCreateReminder(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := pathUUID(r, "workspace_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.CreateReminderRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "message is required")
		return
	}
	if len(req.Message) > model.MaxMessageLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "message too long")
		return
	}
	if req.RemindAt.IsZero() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "remind_at is required")
		return
	}

	rem, err := h.db.CreateReminder(r.Context(), model.Reminder{
		WorkspaceID: workspaceID,
		TaskID:      req.TaskID,
		RemindAt:    req.RemindAt,
		Message:     req.Message,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, rem)
}

// HandleListReminders handles GET /v1/workspaces/{workspace_id}/reminders.
func (h *Handlers) HandleListReminders(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := pathUUID(r, "workspace_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	limit := queryLimit(r, 50)
	offset := queryOffset(r)

	rems, total, err := h.db.ListReminders(r.Context(), workspaceID, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeListJSON(w, r, rems, total, limit, offset)
}

// HandleCancelReminder handles DELETE /v1/reminders/{reminder_id}.
// Reminders are cancelled, not removed, so the row stays auditable.
func (h *Handlers) HandleCancelReminder(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "reminder_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if err := h.db.CancelReminder(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
