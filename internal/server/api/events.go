package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/facecue/internal/gesture"
	"github.com/ayusman/facecue/internal/store"
)

// MaxEventLimit caps the limit query parameter.
const MaxEventLimit = 1000

// EventHandler serves persisted gesture events.
type EventHandler struct {
	store *store.Store
}

// NewEventHandler creates a new EventHandler with the given store.
func NewEventHandler(s *store.Store) *EventHandler {
	return &EventHandler{store: s}
}

type listEventsResponse struct {
	Events []*store.Event `json:"events"`
}

type statsResponse struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// ServeHTTP routes /api/events and /api/events/stats.
func (h *EventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/events")
	path = strings.TrimPrefix(path, "/")

	switch path {
	case "":
		h.list(w, r, filter)
	case "stats":
		h.stats(w, r, filter)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *EventHandler) list(w http.ResponseWriter, r *http.Request, f store.EventFilter) {
	events, err := h.store.Events().List(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	if events == nil {
		events = []*store.Event{}
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Events: events})
}

func (h *EventHandler) stats(w http.ResponseWriter, r *http.Request, f store.EventFilter) {
	counts, err := h.store.Events().CountByType(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count events")
		return
	}

	resp := statsResponse{Counts: make(map[string]int)}
	for _, k := range gesture.Kinds() {
		resp.Counts[string(k)] = counts[string(k)]
		resp.Total += counts[string(k)]
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseFilter(r *http.Request) (store.EventFilter, error) {
	q := r.URL.Query()
	f := store.EventFilter{
		Type:      q.Get("type"),
		SessionID: q.Get("session"),
	}

	if f.Type != "" && !gesture.Kind(f.Type).Valid() {
		return f, fmt.Errorf("Unknown event type: %s", f.Type)
	}

	ints := []struct {
		name string
		dst  *int64
	}{
		{"since", &f.Since},
		{"until", &f.Until},
	}
	for _, p := range ints {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				return f, fmt.Errorf("Invalid %s parameter", p.name)
			}
			*p.dst = n
		}
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, errors.New("Invalid limit parameter")
		}
		f.Limit = min(n, MaxEventLimit)
	}

	return f, nil
}
