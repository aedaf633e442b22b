package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/dynforms/internal/core"
	"github.com/JonMunkholm/dynforms/internal/form"
	"github.com/JonMunkholm/dynforms/internal/logging"
	"github.com/JonMunkholm/dynforms/internal/web/templates"
)

type openSessionRequest struct {
	FormID string  `json:"formId"`
	RowID  form.ID `json:"rowId"`
}

// handleOpenSession loads a form, and optionally one of its rows, into a
// new session.
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.FormID == "" {
		s.respondError(w, r, badRequest{msg: "formId is required"})
		return
	}

	sess, err := s.service.OpenSession(r.Context(), req.FormID, req.RowID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeSession(w, r, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.service.Sessions()})
}

// handleGetSession returns the session as JSON, or the HTML form view when
// the client asks for text/html.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Session(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !wantsHTML(r) {
		s.writeSession(w, r, http.StatusOK, sess)
		return
	}

	warnings := sess.Warnings()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = sess.With(func(f *form.Form) error {
		return templates.FormPage(sess.ID, f, warnings).Render(r.Context(), w)
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("render form", "session_id", sess.ID, "error", err)
	}
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CloseSession(chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateFieldRequest struct {
	Value string `json:"value"`
}

// handleUpdateField applies user input to one root field.
func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	section, err := strconv.Atoi(chi.URLParam(r, "section"))
	if err != nil {
		s.respondError(w, r, badRequest{msg: "section must be an index"})
		return
	}
	field, err := strconv.Atoi(chi.URLParam(r, "field"))
	if err != nil {
		s.respondError(w, r, badRequest{msg: "field must be an index"})
		return
	}
	var req updateFieldRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.service.UpdateField(r.Context(), id, section, field, req.Value); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeSessionByID(w, r, id)
}

type attachFileRequest struct {
	FileName string `json:"fileName"`
	Content  string `json:"content"`
}

// handleAttachFile stores an uploaded file on a Binary field. The file is
// written when the form is next saved.
func (s *Server) handleAttachFile(w http.ResponseWriter, r *http.Request) {
	var req attachFileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.FileName == "" {
		s.respondError(w, r, badRequest{msg: "fileName is required"})
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.service.AttachFile(r.Context(), id, chi.URLParam(r, "column"), req.FileName, req.Content); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeSessionByID(w, r, id)
}

type validateResponse struct {
	Valid   bool                   `json:"valid"`
	Message string                 `json:"message,omitempty"`
	Errors  []form.ValidationError `json:"errors,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Validate(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: res.Status, Message: res.Message, Errors: res.Errors})
}

// handleSave saves the root form and its queued child rows. A save while
// another save of the session runs is rejected with 409.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.service.Save(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleClone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.service.Clone(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queued":   len(res.Queued),
		"warnings": res.Warnings,
	})
}

type selectRecordRequest struct {
	RowID form.ID `json:"rowId"`
}

func (s *Server) handleSelectRecord(w http.ResponseWriter, r *http.Request) {
	var req selectRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if !req.RowID.IsPersisted() {
		s.respondError(w, r, badRequest{msg: "rowId must be a saved row id"})
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.service.SelectRecord(r.Context(), id, req.RowID); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeSessionByID(w, r, id)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.LookupRecords(r.Context(), chi.URLParam(r, "formId"), r.URL.Query().Get("q"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleInvalidateForm(w http.ResponseWriter, r *http.Request) {
	s.service.InvalidateForm(chi.URLParam(r, "formId"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSaveStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.SaveStatus())
}

func (s *Server) writeSessionByID(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := s.service.Session(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeSession(w, r, http.StatusOK, sess)
}

// writeSession snapshots the session under its lock and writes it.
func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, status int, sess *core.Session) {
	selected := sess.Selected()
	warnings := sess.Warnings()
	var view SessionView
	_ = sess.With(func(f *form.Form) error {
		view = newSessionView(sess, f, selected, warnings)
		return nil
	})
	writeJSON(w, status, view)
}
