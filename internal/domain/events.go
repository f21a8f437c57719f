package domain

import (
	"encoding/json"
	"time"
)

// Events sent by clients.
const (
	EventJoin        = "join"
	EventChatMessage = "chat message"
	EventTyping      = "typing"
)

// Events sent to clients.
const (
	EventPreviousMessages = "previous messages"
	EventUserJoined       = "user joined"
	EventUserLeft         = "user left"
	EventErrorMessage     = "error"
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload under the given event name.
func NewEnvelope(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Client -> Server payloads

// JoinRequest accepts both `"alice"` and `{"username":"alice"}`.
type JoinRequest struct {
	Username string `json:"username"`
}

func (r *JoinRequest) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		r.Username = name
		return nil
	}
	type plain JoinRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	r.Username = p.Username
	return nil
}

type ChatMessageRequest struct {
	Message string `json:"message"`
}

type TypingRequest struct {
	IsTyping bool `json:"isTyping"`
}

// Server -> Client payloads

type PresenceEvent struct {
	Username    string   `json:"username"`
	OnlineUsers []string `json:"onlineUsers"`
}

type ChatMessageEvent struct {
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type TypingEvent struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}
