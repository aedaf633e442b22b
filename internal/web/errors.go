package web

// errors.go provides unified error response handling for the web layer.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as user-friendly messages with action suggestions
//   - Formatted for the client: JSON for the API, an HTML alert otherwise
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. The status code is derived from the error with statusFor
//  4. Error is mapped via core.MapError to get user-friendly message
//  5. Technical error + context is logged with request ID for correlation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/dynforms/internal/core"
	"github.com/JonMunkholm/dynforms/internal/form"
	"github.com/JonMunkholm/dynforms/internal/logging"
	"github.com/JonMunkholm/dynforms/internal/web/templates"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Action  string   `json:"action,omitempty"`
	Code    string   `json:"code"`
	Fields  []string `json:"fields,omitempty"`
}

// badRequest marks malformed input detected by a handler.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

// statusFor maps an error to an HTTP status code.
func statusFor(err error) int {
	var (
		verrs form.ValidationErrors
		verr  form.ValidationError
		bad   badRequest
		exec  *core.ExecutionError
		orch  *core.OrchestrationError
	)
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, core.ErrFormNotFound),
		errors.Is(err, core.ErrRecordNotFound),
		errors.Is(err, core.ErrChildFormNotFound),
		errors.Is(err, core.ErrRowNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrSaveInProgress):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManySaves), errors.Is(err, core.ErrTooManySessions):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrNotEditable):
		return http.StatusForbidden
	case errors.As(err, &verrs), errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &orch), errors.As(err, &exec):
		return http.StatusBadGateway
	case strings.Contains(err.Error(), "invalid "), strings.Contains(err.Error(), "out of range"):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError handles error responses with user-friendly messages.
// It logs the technical error server-side and returns an appropriate response
// based on the request type (JSON or HTML).
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	logArgs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", logArgs...)
	} else {
		logger.Warn("request error", logArgs...)
	}

	if wantsJSON(r) {
		respondErrorJSON(w, userMsg, statusCode, invalidFields(err))
	} else {
		respondErrorHTML(w, r, userMsg, statusCode)
	}
}

func invalidFields(err error) []string {
	var verrs form.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs.Fields()
	}
	return nil
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int, fields []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		Fields:  fields,
	})
}

// respondErrorHTML renders the error alert fragment.
func respondErrorHTML(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	contentType := r.Header.Get("Content-Type")

	// Check Accept header
	if strings.Contains(accept, "application/json") {
		return true
	}
	if strings.Contains(accept, "text/html") {
		return false
	}

	// Check if request is sending JSON
	if strings.Contains(contentType, "application/json") {
		return true
	}

	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// wantsHTML reports whether a GET should render the HTML view.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
