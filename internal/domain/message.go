package domain

import "time"

// DefaultRoom is the room every connection joins unless configured otherwise.
const DefaultRoom = "general"

// Message is a persisted chat message. It is never mutated after creation.
type Message struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Body      string    `json:"message"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

// UserPresence is the online status of a username, keyed by username.
type UserPresence struct {
	Username string    `json:"username"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}
