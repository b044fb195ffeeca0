package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/facecue/internal/session"
	"github.com/ayusman/facecue/internal/store"
)

// ActiveSessions lists live sessions. *session.Manager satisfies it.
type ActiveSessions interface {
	Active() []session.Summary
}

// SessionHandler serves live and persisted session summaries.
type SessionHandler struct {
	store  *store.Store
	active ActiveSessions
}

// NewSessionHandler creates a new SessionHandler. Either argument may be nil.
func NewSessionHandler(s *store.Store, active ActiveSessions) *SessionHandler {
	return &SessionHandler{store: s, active: active}
}

type listSessionsResponse struct {
	Active []session.Summary `json:"active"`
	Recent []*store.Session  `json:"recent"`
}

// ServeHTTP routes /api/sessions and /api/sessions/{id}.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		h.list(w, r)
		return
	}
	h.get(w, r, path)
}

func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	resp := listSessionsResponse{
		Active: []session.Summary{},
		Recent: []*store.Session{},
	}

	if h.active != nil {
		resp.Active = h.active.Active()
	}

	if h.store != nil {
		recent, err := h.store.Sessions().List(r.Context(), 50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list sessions")
			return
		}
		if recent != nil {
			resp.Recent = recent
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	if h.active != nil {
		for _, s := range h.active.Active() {
			if s.ID == id {
				writeJSON(w, http.StatusOK, s)
				return
			}
		}
	}

	if h.store == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	s, err := h.store.Sessions().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, s)
}
