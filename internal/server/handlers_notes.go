package server

import (
	"net/http"

	"github.com/ashita-ai/kaigi/internal/model"
)

// HandleCreateNote handles POST /v1/workspaces/{workspace_id}/notes.
func (h *Handlers) HandleCreateNote(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := pathUUID(r, "workspace_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.CreateNoteRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	n, err := h.noteSvc.Create(r.Context(), workspaceID, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, n)
}

// HandleListNotes handles GET /v1/workspaces/{workspace_id}/notes.
func (h *Handlers) HandleListNotes(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := pathUUID(r, "workspace_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	limit := queryLimit(r, 50)
	offset := queryOffset(r)

	ns, total, err := h.noteSvc.List(r.Context(), workspaceID, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeListJSON(w, r, ns, total, limit, offset)
}

// HandleGetNote handles GET /v1/notes/{note_id}.
func (h *Handlers) HandleGetNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "note_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	n, err := h.noteSvc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, n)
}

// HandlePatchNote handles PATCH /v1/notes/{note_id}.
func (h *Handlers) HandlePatchNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "note_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.UpdateNoteRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	n, err := h.noteSvc.Update(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, n)
}

// HandleDeleteNote handles DELETE /v1/notes/{note_id}.
func (h *Handlers) HandleDeleteNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "note_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if err := h.noteSvc.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSearchNotes handles POST /v1/workspaces/{workspace_id}/search/notes.
func (h *Handlers) HandleSearchNotes(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := pathUUID(r, "workspace_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.SearchNotesRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	matches, err := h.noteSvc.Search(r.Context(), workspaceID, req.Query, req.Limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, matches)
}

// HandleIngestTranscript handles POST /v1/workspaces/{workspace_id}/meetings/transcripts.
func (h *Handlers) HandleIngestTranscript(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := pathUUID(r, "workspace_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.IngestTranscriptRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	resp, err := h.meetingSvc.IngestTranscript(r.Context(), workspaceID, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, resp)
}
