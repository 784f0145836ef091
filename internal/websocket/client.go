package websocket

import (
	"time"

	"github.com/adi-253/parley/backend/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// State is the lifecycle position of a connection.
type State int

const (
	// StateConnected: transport open, no display name yet
	StateConnected State = iota
	// StateIdentified: display name registered in the presence registry
	StateIdentified
	// StateClosed is terminal
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client represents a single WebSocket connection
type Client struct {
	hub *Hub

	// WebSocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages, closed by the hub only
	send chan []byte

	// ready is closed once the history window was delivered
	ready chan struct{}

	// ID uniquely identifies this transport session
	ID string

	// state is owned by the hub dispatcher loop
	state State

	// replayed is set once the history window was queued; until then chat
	// frames wait in pending. Both are owned by the hub dispatcher loop.
	replayed bool
	pending  []pendingChat
}

// pendingChat is a chat frame broadcast while its receiver awaited history.
type pendingChat struct {
	frame []byte
	at    time.Time
}

// NewClient creates a new Client instance
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, hub.sendBufferSize),
		ready: make(chan struct{}),
		ID:    uuid.New().String(),
		state: StateConnected,
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub.
// Events are handed over one at a time and the next frame is only read once
// the hub finished handling the previous one, persistence included.
// This runs in its own goroutine per client
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("Read error", "connection", c.ID, "error", err)
			}
			return
		}

		event, err := c.hub.decoder.Decode(data)
		if err != nil {
			c.hub.log.Debug("Dropping malformed event", "connection", c.ID, "error", err)
			continue
		}

		if !c.hub.submit(c, event) {
			return
		}
		if event.Type == models.EventLeave {
			return
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
// This runs in its own goroutine per client
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Each message is a separate frame so every frame stays one JSON document
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Send any queued messages as separate frames
			n := len(c.send)
			for i := 0; i < n; i++ {
				queued, ok := <-c.send
				if !ok {
					c.conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
