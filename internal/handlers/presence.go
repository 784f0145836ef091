package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/adi-253/parley/backend/internal/models"
	"github.com/adi-253/parley/backend/internal/presence"
)

// PresenceHandler exposes the presence registry over HTTP.
type PresenceHandler struct {
	registry *presence.Registry
}

// NewPresenceHandler creates a new PresenceHandler instance.
func NewPresenceHandler(registry *presence.Registry) *PresenceHandler {
	return &PresenceHandler{registry: registry}
}

// ListActive handles GET /api/presence
// Returns the same snapshot the relay broadcasts as activeUsersList.
func (h *PresenceHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ActiveUsersPayload{Users: h.registry.Snapshot()})
}

// writeJSON is a helper function to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
