package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message is the envelope for every websocket frame exchanged with the relay.
// Payload stays opaque to the relay; only clients decode it.
type Message struct {
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants.
const (
	TypeJoin    = "join"
	TypeMembers = "members"
	TypeOffer   = "offer"
	TypeAnswer  = "answer"
	TypeICE     = "ice"
	TypeError   = "error"
)

// MembersPayload is broadcast by the relay whenever a room's membership changes.
type MembersPayload struct {
	Count int `json:"count"`
}

// ErrorPayload is sent by the relay when it refuses a request.
type ErrorPayload struct {
	Error string `json:"error"`
}

var (
	ErrMissingType = errors.New("message type is required")
	ErrMissingRoom = errors.New("join requires a room")
)

// NewMessage builds a message with a JSON encoded payload.
func NewMessage(msgType string, payload any) (*Message, error) {
	msg := &Message{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// JoinMessage builds the client's join request.
func JoinMessage(room string) *Message {
	return &Message{Type: TypeJoin, Room: room}
}

// Parse decodes one raw frame and performs basic validation.
func Parse(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type == "" {
		return nil, ErrMissingType
	}
	if msg.Type == TypeJoin && msg.Room == "" {
		return nil, ErrMissingRoom
	}
	return &msg, nil
}

// DecodePayload unmarshals the payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: payload is empty", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", m.Type, err)
	}
	return nil
}

// ServerOnly reports whether only the relay may originate this type.
func (m *Message) ServerOnly() bool {
	return m.Type == TypeMembers || m.Type == TypeError
}
