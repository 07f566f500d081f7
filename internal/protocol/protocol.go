// Package protocol defines the collaboration wire format: a JSON envelope
// {"type", "payload"} carrying the room messages exchanged between clients
// and the relay server.
package protocol

import (
	"fmt"

	"github.com/goccy/go-json"

	"drawboard/internal/element"
)

// Message types
const (
	TypeJoinRoom       = "join-room"
	TypePresenceUpdate = "presence-update"
	TypeCursorMove     = "cursor-move"
	TypeElementUpdate  = "element-update"
	TypeUserActivity   = "user-activity"
	TypeError          = "error"
)

// Envelope 와이어 메시지 봉투
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// User 세션 사용자 식별 정보
type User struct {
	ID       string `json:"id" validate:"required,max=64"`
	Name     string `json:"name" validate:"required,max=100"`
	Initials string `json:"initials" validate:"max=4"`
	Color    string `json:"color" validate:"max=32"`
}

// Participant 룸 참가자 (휘발성, 저장하지 않음)
type Participant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Initials string `json:"initials"`
	Color    string `json:"color"`
	SocketID string `json:"socketId"`
	IsActive bool   `json:"isActive"`
}

// NewParticipant binds a user identity to a connection.
func NewParticipant(u User, socketID string) Participant {
	return Participant{
		ID:       u.ID,
		Name:     u.Name,
		Initials: u.Initials,
		Color:    u.Color,
		SocketID: socketID,
		IsActive: true,
	}
}

// JoinRoom join-room payload
type JoinRoom struct {
	DrawingID string `json:"drawingId" validate:"required"`
	User      User   `json:"user" validate:"required"`
}

// Pointer cursor position in scene coordinates
type Pointer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CursorMove cursor-move payload
type CursorMove struct {
	DrawingID string  `json:"drawingId"`
	Pointer   Pointer `json:"pointer"`
	Button    string  `json:"button"`
	UserID    string  `json:"userId"`
	Color     string  `json:"color"`
}

// ElementUpdate element-update payload
type ElementUpdate struct {
	DrawingID string            `json:"drawingId"`
	Elements  []element.Element `json:"elements"`
	UserID    string            `json:"userId"`
}

// UserActivity user-activity payload
type UserActivity struct {
	DrawingID string `json:"drawingId"`
	IsActive  bool   `json:"isActive"`
}

// ErrorPayload error payload
type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode builds a frame for the given type and payload.
func Encode(msgType string, payload any) ([]byte, error) {
	env := Envelope{Type: msgType}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
		}
		env.Payload = b
	}
	return json.Marshal(env)
}

// MustEncode is Encode for payloads that cannot fail to marshal.
func MustEncode(msgType string, payload any) []byte {
	b, err := Encode(msgType, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses a frame envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into dst.
func (e Envelope) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%s: %w", e.Type, err)
	}
	return nil
}
