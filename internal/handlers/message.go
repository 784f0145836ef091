package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/adi-253/parley/backend/internal/models"
	"github.com/adi-253/parley/backend/internal/services"
)

// MaxMessagesLimit caps the limit query parameter of GET /api/messages.
const MaxMessagesLimit = 500

// MessageHandler contains HTTP handlers for message history.
// Provides a polling-based fallback when the WebSocket relay is unavailable.
type MessageHandler struct {
	history *services.HistoryService
	log     *slog.Logger
}

// NewMessageHandler creates a new MessageHandler instance.
func NewMessageHandler(history *services.HistoryService, log *slog.Logger) *MessageHandler {
	return &MessageHandler{history: history, log: log}
}

// GetMessages handles GET /api/messages
// Returns the most recent messages in ascending timestamp order.
// Query params:
//   - limit: number of messages, defaults to the history window size
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	limit := h.history.Limit()
	if param := r.URL.Query().Get("limit"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err != nil || parsed < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(parsed, MaxMessagesLimit)
	}

	messages, err := h.history.FetchRecent(r.Context(), limit)
	if err != nil {
		h.log.Warn("History request failed", "limit", limit, "error", err)
		http.Error(w, "history unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, models.GetMessagesResponse{
		Messages: services.Payloads(messages),
		Order:    models.OrderAscending,
	})
}
