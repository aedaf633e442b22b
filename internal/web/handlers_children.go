package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/dynforms/internal/form"
)

// newRowParam addresses a row that does not exist yet.
const newRowParam = "new"

func parseRowID(s string) (form.ID, error) {
	if s == newRowParam {
		return form.ID{}, nil
	}
	id, err := form.ParseID(s)
	if err != nil {
		return form.ID{}, badRequest{msg: err.Error()}
	}
	return id, nil
}

// handleOpenChildRow loads a child row for editing with its entitlements.
// ensureSaved=true saves an unsaved root first so the row gets a parent id.
func (s *Server) handleOpenChildRow(w http.ResponseWriter, r *http.Request) {
	rowID, err := parseRowID(chi.URLParam(r, "rowId"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	ensureSaved := false
	if v := r.URL.Query().Get("ensureSaved"); v != "" {
		ensureSaved, err = strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, r, badRequest{msg: "ensureSaved must be a boolean"})
			return
		}
	}

	view, err := s.service.OpenChildRow(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "childFormId"), rowID, ensureSaved)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type commitChildRowRequest struct {
	RowID  form.ID           `json:"rowId"`
	Values map[string]string `json:"values"`
}

type commitChildRowResponse struct {
	ChildFormID string  `json:"childFormId"`
	RowID       form.ID `json:"rowId"`
	Queued      bool    `json:"queued"`
}

// handleCommitChildRow validates a child row and queues its save. Invalid
// rows are answered with 422 and the failing fields.
func (s *Server) handleCommitChildRow(w http.ResponseWriter, r *http.Request) {
	var req commitChildRowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	entry, err := s.service.CommitChildRow(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "childFormId"), req.RowID, req.Values)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	resp := commitChildRowResponse{ChildFormID: chi.URLParam(r, "childFormId"), RowID: req.RowID}
	if entry != nil {
		resp.ChildFormID = entry.ChildFormID
		resp.RowID = entry.RowID
		resp.Queued = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteChildRow(w http.ResponseWriter, r *http.Request) {
	rowID, err := parseRowID(chi.URLParam(r, "rowId"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if rowID.IsZero() {
		s.respondError(w, r, badRequest{msg: "rowId is required"})
		return
	}

	if err := s.service.DeleteChildRow(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "childFormId"), rowID); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
