// Package web provides the HTTP API over form editing sessions.
package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/dynforms/internal/config"
	"github.com/JonMunkholm/dynforms/internal/core"
	"github.com/JonMunkholm/dynforms/internal/web/middleware"
)

// maxBodySize bounds request bodies; file attachments arrive inline.
const maxBodySize = 32 << 20

// Server is the HTTP server for form editing sessions.
type Server struct {
	service  *core.Service
	cfg      config.ServerConfig
	security config.SecurityConfig
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg config.ServerConfig, security config.SecurityConfig) *Server {
	s := &Server{
		service:  service,
		cfg:      cfg,
		security: security,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)

	// Security hardening
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.security))

		// Event streams stay open past the request timeout
		r.Get("/sessions/{id}/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			timeout := s.cfg.RequestTimeout
			if timeout <= 0 {
				timeout = 60 * time.Second
			}
			r.Use(chimw.Timeout(timeout))

			// Sessions
			r.Post("/sessions", s.handleOpenSession)
			r.Get("/sessions", s.handleListSessions)
			r.Get("/sessions/{id}", s.handleGetSession)
			r.Delete("/sessions/{id}", s.handleCloseSession)

			// Editing
			r.Put("/sessions/{id}/fields/{section}/{field}", s.handleUpdateField)
			r.Put("/sessions/{id}/files/{column}", s.handleAttachFile)
			r.Post("/sessions/{id}/validate", s.handleValidate)

			// Child rows
			r.Get("/sessions/{id}/children/{childFormId}/rows/{rowId}", s.handleOpenChildRow)
			r.Post("/sessions/{id}/children/{childFormId}/rows", s.handleCommitChildRow)
			r.Delete("/sessions/{id}/children/{childFormId}/rows/{rowId}", s.handleDeleteChildRow)

			// Save, clone and record selection
			r.Post("/sessions/{id}/save", s.handleSave)
			r.Post("/sessions/{id}/clone", s.handleClone)
			r.Post("/sessions/{id}/select", s.handleSelectRecord)

			// Lookup
			r.Get("/forms/{formId}/lookup", s.handleLookup)
			r.Post("/forms/{formId}/invalidate", s.handleInvalidateForm)
			r.Get("/saves/status", s.handleSaveStatus)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout, // 0 keeps event streams open
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": len(s.service.Sessions()),
	})
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// Content Security Policy - the form view loads nothing external
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return nil
		}
		return badRequest{msg: "invalid request body: " + err.Error()}
	}
	return nil
}
