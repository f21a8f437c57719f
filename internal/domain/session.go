package domain

import (
	"sync"
	"time"
)

type SessionState int

const (
	StateUnjoined SessionState = iota
	StateJoined
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the protocol state of one connection.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.RWMutex
	state    SessionState
	username string
	room     string
	joinedAt time.Time
}

func NewSession(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		state:     StateUnjoined,
	}
}

// Join moves an unjoined session to Joined.
func (s *Session) Join(username, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateJoined:
		return ErrAlreadyJoined
	case StateClosed:
		return ErrSessionClosed
	}
	s.state = StateJoined
	s.username = username
	s.room = room
	s.joinedAt = time.Now()
	return nil
}

// Close moves the session to Closed and reports whether it had joined, along
// with the identity it joined under. Calling Close twice returns false.
func (s *Session) Close() (bool, string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasJoined := s.state == StateJoined
	s.state = StateClosed
	return wasJoined, s.username, s.room
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) IsJoined() bool {
	return s.State() == StateJoined
}

func (s *Session) IsClosed() bool {
	return s.State() == StateClosed
}

// Identity returns the username and room of a joined session.
func (s *Session) Identity() (string, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateJoined {
		return "", "", false
	}
	return s.username, s.room, true
}

func (s *Session) JoinedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.joinedAt
}
