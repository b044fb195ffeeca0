package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/ayusman/facecue/internal/config"
)

// maxConfigBody bounds PUT /api/config bodies.
const maxConfigBody = 64 << 10

// ConfigHandler reads and patches the live detection settings.
type ConfigHandler struct {
	runtime *config.Runtime
	persist func(ctx context.Context, d config.Detection) error
}

// NewConfigHandler creates a ConfigHandler. persist, when non-nil, is called
// after every accepted update.
func NewConfigHandler(rt *config.Runtime, persist func(ctx context.Context, d config.Detection) error) *ConfigHandler {
	return &ConfigHandler{runtime: rt, persist: persist}
}

// ServeHTTP handles GET and PUT /api/config.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.runtime.Snapshot())
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ConfigHandler) update(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	d, err := h.runtime.Patch(body)
	if err != nil {
		if errors.Is(err, config.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update config")
		return
	}

	if h.persist != nil {
		if err := h.persist(r.Context(), d); err != nil {
			writeError(w, http.StatusInternalServerError, "Config applied but not saved")
			return
		}
	}

	writeJSON(w, http.StatusOK, d)
}
