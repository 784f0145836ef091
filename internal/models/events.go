package models

import "encoding/json"

// Inbound event types sent by clients.
const (
	EventIdentify = "identify"
	EventChat     = "chat"
	EventLeave    = "leave"
)

// Outbound event types sent by the relay.
const (
	EventChatMessage        = "chatMessage"
	EventActiveUsersList    = "activeUsersList"
	EventHistoricalMessages = "historicalMessages"
)

// Envelope is the frame format for every websocket message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// IdentifyPayload declares the display name of a connection.
type IdentifyPayload struct {
	DisplayName string `json:"displayName" validate:"required,max=64"`
}

// ChatPayload is a chat message sent by a client.
// Body length is checked against the configured limit separately.
type ChatPayload struct {
	Sender string `json:"sender" validate:"required,max=64"`
	Body   string `json:"body" validate:"required"`
}

// LeavePayload announces that a client is leaving. DisplayName is informational,
// removal is keyed by the connection.
type LeavePayload struct {
	DisplayName string `json:"displayName" validate:"max=64"`
}

// Encode wraps a payload into an outbound frame.
func Encode(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}
