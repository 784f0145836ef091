package websocket

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/adi-253/parley/backend/internal/models"
	"github.com/go-playground/validator/v10"
)

// inboundEvent is a decoded and validated client frame.
// Only the payload matching Type is populated.
type inboundEvent struct {
	Type     string
	Identify models.IdentifyPayload
	Chat     models.ChatPayload
	Leave    models.LeavePayload
}

// eventDecoder turns raw frames into inbound events. Every failure is
// reported as models.ErrMalformedEvent.
type eventDecoder struct {
	validate      *validator.Validate
	maxBodyLength int
}

func newEventDecoder(maxBodyLength int) *eventDecoder {
	return &eventDecoder{
		validate:      validator.New(),
		maxBodyLength: maxBodyLength,
	}
}

func (d *eventDecoder) Decode(data []byte) (inboundEvent, error) {
	var envelope models.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return inboundEvent{}, models.MalformedEvent("envelope", err)
	}

	event := inboundEvent{Type: envelope.Type}
	var target any
	switch envelope.Type {
	case models.EventIdentify:
		target = &event.Identify
	case models.EventChat:
		target = &event.Chat
	case models.EventLeave:
		target = &event.Leave
	default:
		return inboundEvent{}, models.MalformedEvent(envelope.Type, fmt.Errorf("unknown event type"))
	}

	// leave may come without a payload at all
	if len(envelope.Payload) > 0 && string(envelope.Payload) != "null" {
		if err := json.Unmarshal(envelope.Payload, target); err != nil {
			return inboundEvent{}, models.MalformedEvent(envelope.Type, err)
		}
	}
	if err := d.validate.Struct(target); err != nil {
		return inboundEvent{}, models.MalformedEvent(envelope.Type, err)
	}

	if envelope.Type == models.EventChat && utf8.RuneCountInString(event.Chat.Body) > d.maxBodyLength {
		return inboundEvent{}, models.MalformedEvent(envelope.Type,
			fmt.Errorf("body exceeds %d characters", d.maxBodyLength))
	}
	return event, nil
}
