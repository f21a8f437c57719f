package repository

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/chat-relay/internal/domain"
)

var ErrUnknownDriver = errors.New("unknown store driver")

// Gateway persists messages and user presence. Implementations are safe for
// concurrent use.
type Gateway interface {
	InsertMessage(ctx context.Context, msg *domain.Message) error
	// UpsertUserPresence creates the record for username if absent. There is
	// never more than one record per username.
	UpsertUserPresence(ctx context.Context, username string, isOnline bool, lastSeen time.Time) error
	// FindRecentMessages returns at most limit messages of room, newest first.
	FindRecentMessages(ctx context.Context, room string, limit int) ([]domain.Message, error)
	FindAllUsers(ctx context.Context) ([]domain.UserPresence, error)
	Close() error
}
