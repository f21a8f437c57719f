package service

import (
	"context"

	"github.com/weiawesome/chat-relay/internal/domain"
)

// Broadcaster delivers events to live connections.
type Broadcaster interface {
	BroadcastToRoom(room, event string, payload interface{}, exclude string) error
	SendToConnection(connectionID, event string, payload interface{}) error
}

// ChatService drives the per-connection protocol. Every method returns nil
// on success or a *domain.EventError that has already been reported to the
// connection.
type ChatService interface {
	HandleJoin(ctx context.Context, session *domain.Session, username string) error
	HandleChatMessage(ctx context.Context, session *domain.Session, body string) error
	HandleTyping(ctx context.Context, session *domain.Session, isTyping bool) error
	HandleDisconnect(ctx context.Context, session *domain.Session) error
	// ReportError sends an error event to the connection.
	ReportError(ctx context.Context, session *domain.Session, err *domain.EventError) error
}

type HistoryService interface {
	// LoadRecent returns at most limit messages of room in chronological order.
	LoadRecent(ctx context.Context, room string, limit int) ([]domain.Message, error)
	// GetMessages is LoadRecent with limit clamped to the read API bounds.
	GetMessages(ctx context.Context, room string, limit int) ([]domain.Message, error)
	// GetAllUsers returns every known user, most recently seen first.
	GetAllUsers(ctx context.Context) ([]domain.UserPresence, error)
	// Invalidate drops cached pages of room after a write.
	Invalidate(ctx context.Context, room string)
}
