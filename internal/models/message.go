package models

import "time"

// Message represents a persisted chat message.
// Messages are immutable once appended to the history log.
type Message struct {
	// ID is the unique identifier for this message, assigned by the store
	ID string `json:"id"`

	// Sender is the display name the client attached to the message.
	// It is free text and not tied to an authenticated principal.
	Sender string `json:"sender"`

	// Body is the message text
	Body string `json:"message"`

	// Timestamp is assigned by the store at write time and is strictly increasing
	Timestamp time.Time `json:"timestamp"`
}

// ChatMessagePayload is the outbound chatMessage payload.
type ChatMessagePayload struct {
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChatMessagePayload converts a stored message into its wire form.
func NewChatMessagePayload(msg Message) ChatMessagePayload {
	return ChatMessagePayload{
		Sender:    msg.Sender,
		Message:   msg.Body,
		Timestamp: msg.Timestamp,
	}
}

// HistoricalMessagesPayload is sent only to a newly opened connection.
type HistoricalMessagesPayload struct {
	Messages []ChatMessagePayload `json:"messages"`
	Order    string               `json:"order"`
}

// ActiveUsersPayload carries the full presence snapshot.
// Receivers replace their list, it is never a delta.
type ActiveUsersPayload struct {
	Users []string `json:"users"`
}

// GetMessagesResponse is the response for the polling history endpoint
type GetMessagesResponse struct {
	Messages []ChatMessagePayload `json:"messages"`
	Order    string               `json:"order"`
}

// OrderAscending is the only order history is ever delivered in.
const OrderAscending = "ascending"
