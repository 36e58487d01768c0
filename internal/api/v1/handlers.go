// SPDX-License-Identifier: MIT

// Package v1 serves the read-only diagnostics API.
package v1

import (
	"encoding/json"
	"net/http"

	"github.com/ManuGH/liverelay/internal/domain/session/registry"
	"github.com/ManuGH/liverelay/internal/log"
	"github.com/go-chi/chi/v5"
)

// SessionLister is the part of the session registry the API reads.
type SessionLister interface {
	Snapshot() []registry.Info
	Get(id string) (*registry.Session, bool)
}

// Handler holds v1 API dependencies
type Handler struct {
	sessions SessionLister
}

// NewHandler creates a new v1 API handler
func NewHandler(sessions SessionLister) *Handler {
	return &Handler{sessions: sessions}
}

// Routes mounts the v1 endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/sessions", h.HandleListSessions)
	r.Get("/sessions/{sessionID}", h.HandleGetSession)
}

// SessionsResponse is the body of GET /api/v1/sessions.
type SessionsResponse struct {
	Count    int             `json:"count"`
	Sessions []registry.Info `json:"sessions"`
}

// HandleListSessions implements GET /api/v1/sessions
func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessions.Snapshot()
	writeJSON(w, r, http.StatusOK, SessionsResponse{Count: len(sessions), Sessions: sessions})
}

// HandleGetSession implements GET /api/v1/sessions/{sessionID}
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeJSON(w, r, http.StatusNotFound, map[string]string{"error": "session_not_found"})
		return
	}
	writeJSON(w, r, http.StatusOK, s.Info())
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-API-Version", "1")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithComponentFromContext(r.Context(), "api.v1").Error().Err(err).Msg("failed to encode v1 response")
	}
}
