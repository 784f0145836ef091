package websocket

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/adi-253/parley/backend/internal/models"
	"github.com/adi-253/parley/backend/internal/presence"
	"github.com/adi-253/parley/backend/internal/services"
)

// Options tunes per-connection limits of the hub.
type Options struct {
	// SendBufferSize is the outbound queue length; a full queue drops the client
	SendBufferSize int
	// MaxMessageSize is the read limit for one inbound frame in bytes
	MaxMessageSize int64
	// MaxBodyLength bounds a chat body in characters
	MaxBodyLength int
}

// Hub is the broadcast relay. A single dispatcher loop (Run) owns the set of
// connected clients and every connection state transition. Persistence I/O
// runs outside the loop and reports back through channels, so a slow store
// call of one connection never stalls the others.
type Hub struct {
	// clients is the set of open connections, touched only by Run
	clients map[*Client]bool

	presence *presence.Registry
	history  *services.HistoryService
	log      *slog.Logger
	decoder  *eventDecoder

	// register requests from newly upgraded connections
	register chan *Client

	// unregister requests from closing connections
	unregister chan *Client

	// inbound carries decoded client events
	inbound chan *dispatch

	// windows carries history fetched for a new connection
	windows chan *historyWindow

	// persisted carries the outcome of chat appends
	persisted chan *appendResult

	// done is closed when Run returns
	done chan struct{}

	connected      atomic.Int64
	sendBufferSize int
	maxMessageSize int64
}

// dispatch is one inbound event; done is closed once it is fully handled.
type dispatch struct {
	client *Client
	event  inboundEvent
	done   chan struct{}
}

type historyWindow struct {
	client   *Client
	messages []models.Message
}

type appendResult struct {
	client  *Client
	message models.Message
	err     error
	done    chan struct{}
}

// NewHub creates a new Hub instance
func NewHub(history *services.HistoryService, registry *presence.Registry, log *slog.Logger, opts Options) *Hub {
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 256
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 64 * 1024
	}
	if opts.MaxBodyLength <= 0 {
		opts.MaxBodyLength = 4096
	}
	return &Hub{
		clients:        make(map[*Client]bool),
		presence:       registry,
		history:        history,
		log:            log,
		decoder:        newEventDecoder(opts.MaxBodyLength),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		inbound:        make(chan *dispatch),
		windows:        make(chan *historyWindow),
		persisted:      make(chan *appendResult),
		done:           make(chan struct{}),
		sendBufferSize: opts.SendBufferSize,
		maxMessageSize: opts.MaxMessageSize,
	}
}

// Run starts the hub's main event loop and returns when ctx is cancelled.
// This should be called in a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(ctx, client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case window := <-h.windows:
			h.deliverHistory(window)

		case d := <-h.inbound:
			h.handleEvent(ctx, d)

		case result := <-h.persisted:
			h.handleAppended(result)
		}
	}
}

// Done is closed once the hub stopped.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Connect registers a new connection and blocks until its history window was
// delivered and presence broadcast. Returns false if the hub stopped first.
func (h *Hub) Connect(client *Client) bool {
	select {
	case h.register <- client:
	case <-h.done:
		// never registered, the hub does not own the queue
		close(client.send)
		return false
	}

	select {
	case <-client.ready:
		return true
	case <-h.done:
		return false
	}
}

// Disconnect reports a closed transport. Safe to call more than once.
func (h *Hub) Disconnect(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// submit hands an inbound event to the dispatcher and waits until it is
// handled, so events of one connection are processed in order.
// Returns false if the hub stopped.
func (h *Hub) submit(client *Client, event inboundEvent) bool {
	d := &dispatch{client: client, event: event, done: make(chan struct{})}
	select {
	case h.inbound <- d:
	case <-h.done:
		return false
	}

	select {
	case <-d.done:
		return true
	case <-h.done:
		return false
	}
}

// ClientCount returns the number of open connections
func (h *Hub) ClientCount() int {
	return int(h.connected.Load())
}

// registerClient adds the connection and starts fetching its history window.
func (h *Hub) registerClient(ctx context.Context, client *Client) {
	h.clients[client] = true
	h.connected.Add(1)
	h.log.Info("Client connected", "connection", client.ID, "total", len(h.clients))

	go func() {
		messages := h.history.Window(ctx)
		select {
		case h.windows <- &historyWindow{client: client, messages: messages}:
		case <-h.done:
		}
	}()
}

// deliverHistory unicasts the window, then the chat broadcast while it was
// fetched, then presence to everyone. Queued chat already contained in the
// window is skipped. A window for a connection that closed meanwhile is discarded.
func (h *Hub) deliverHistory(window *historyWindow) {
	client := window.client
	defer close(client.ready)

	if !h.clients[client] {
		h.log.Debug("Discarding history for closed connection", "connection", client.ID)
		return
	}

	frame, err := models.Encode(models.EventHistoricalMessages, models.HistoricalMessagesPayload{
		Messages: services.Payloads(window.messages),
		Order:    models.OrderAscending,
	})
	if err != nil {
		h.log.Error("Failed to encode history", "error", err)
	} else if !h.sendTo(client, frame) {
		return
	}

	var newest time.Time
	if n := len(window.messages); n > 0 {
		newest = window.messages[n-1].Timestamp
	}
	pending := client.pending
	client.pending = nil
	client.replayed = true
	for _, chat := range pending {
		if !chat.at.After(newest) {
			continue
		}
		if !h.sendTo(client, chat.frame) {
			return
		}
	}

	h.broadcastPresence()
}

func (h *Hub) handleEvent(ctx context.Context, d *dispatch) {
	client := d.client
	if client.state == StateClosed || !h.clients[client] {
		close(d.done)
		return
	}

	switch d.event.Type {
	case models.EventIdentify:
		h.presence.Register(client.ID, d.event.Identify.DisplayName)
		client.state = StateIdentified
		h.log.Info("Client identified", "connection", client.ID, "name", d.event.Identify.DisplayName)
		h.broadcastPresence()
		close(d.done)

	case models.EventChat:
		chat := d.event.Chat
		go func() {
			message, err := h.history.Append(ctx, chat.Sender, chat.Body)
			select {
			case h.persisted <- &appendResult{client: client, message: message, err: err, done: d.done}:
			case <-h.done:
			}
		}()

	case models.EventLeave:
		h.log.Info("Client left", "connection", client.ID)
		h.unregisterClient(client)
		close(d.done)

	default:
		close(d.done)
	}
}

// handleAppended broadcasts a chat message only once it is persisted.
func (h *Hub) handleAppended(result *appendResult) {
	defer close(result.done)

	if result.err != nil {
		h.log.Warn("Chat message not persisted, broadcast suppressed",
			"connection", result.client.ID, "error", result.err)
		return
	}

	frame, err := models.Encode(models.EventChatMessage, models.NewChatMessagePayload(result.message))
	if err != nil {
		h.log.Error("Failed to encode chat message", "error", err)
		return
	}
	h.broadcast(frame, result.message.Timestamp)
}

// unregisterClient closes a connection and rebroadcasts presence if its
// display name was registered.
func (h *Hub) unregisterClient(client *Client) {
	if !h.clients[client] {
		return
	}

	name, _ := h.presence.Lookup(client.ID)
	delete(h.clients, client)
	close(client.send)
	client.state = StateClosed
	client.pending = nil
	h.connected.Add(-1)
	h.log.Info("Client disconnected", "connection", client.ID, "name", name, "remaining", len(h.clients))

	if h.presence.Remove(client.ID) {
		h.broadcastPresence()
	}
}

func (h *Hub) broadcastPresence() {
	frame, err := models.Encode(models.EventActiveUsersList, models.ActiveUsersPayload{
		Users: h.presence.Snapshot(),
	})
	if err != nil {
		h.log.Error("Failed to encode presence", "error", err)
		return
	}
	h.broadcast(frame, time.Time{})
}

// broadcast sends a frame to every open connection. at is the stored
// timestamp of a chat message and zero for presence.
// Connections still waiting for history queue chat frames and skip presence,
// a fresh snapshot follows their replay. Clients whose buffer is full are
// removed after the fan-out.
func (h *Hub) broadcast(frame []byte, at time.Time) {
	var slow []*Client
	for client := range h.clients {
		if !client.replayed {
			if at.IsZero() {
				continue
			}
			if len(client.pending) >= cap(client.send) {
				slow = append(slow, client)
				continue
			}
			client.pending = append(client.pending, pendingChat{frame: frame, at: at})
			continue
		}
		select {
		case client.send <- frame:
		default:
			slow = append(slow, client)
		}
	}

	for _, client := range slow {
		h.log.Warn("Dropping slow client", "connection", client.ID)
		h.unregisterClient(client)
	}
}

// sendTo unicasts a frame and reports whether the client is still connected.
func (h *Hub) sendTo(client *Client, frame []byte) bool {
	select {
	case client.send <- frame:
		return true
	default:
		h.log.Warn("Dropping slow client", "connection", client.ID)
		h.unregisterClient(client)
		return false
	}
}

// shutdown closes every connection without broadcasting
func (h *Hub) shutdown() {
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
		client.state = StateClosed
		h.presence.Remove(client.ID)
	}
	h.connected.Store(0)
	h.log.Info("Hub stopped")
}
