package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// upgrader upgrades HTTP connections to WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow connections from any origin (CORS handled by middleware)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler handles WebSocket connections
type Handler struct {
	hub *Hub
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeWS handles WebSocket upgrade requests at /ws.
// The client is authenticated out of band and declares its display name
// with an identify event once connected.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warn("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(h.hub, conn)
	h.hub.log.Debug("New connection", "connection", client.ID, "remote", r.RemoteAddr)

	// The writer must run before Connect queues the history window
	go client.WritePump()
	if !h.hub.Connect(client) {
		// the queue is closed already, WritePump exits on its own
		conn.Close()
		return
	}
	go client.ReadPump()
}
