package cache

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/chat-relay/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// HistoryCache caches recent-message pages per room. Every room has a
// version; Invalidate bumps it so pages written under an older version are
// never returned again.
type HistoryCache interface {
	// Get returns the cached page and the room version it was looked up
	// under. On a miss it returns ErrCacheMiss together with the version,
	// which the caller passes back to Set.
	Get(ctx context.Context, room string, limit int) ([]domain.Message, int64, error)
	Set(ctx context.Context, room string, version int64, limit int, messages []domain.Message, ttl time.Duration) error
	Invalidate(ctx context.Context, room string) error
	Close() error
}
