package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/weiawesome/chat-relay/internal/domain"
)

// MemoryGateway keeps everything in process memory. Data is lost on restart.
type MemoryGateway struct {
	mu       sync.RWMutex
	messages map[string][]domain.Message // room -> messages in insertion order
	users    map[string]domain.UserPresence
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		messages: make(map[string][]domain.Message),
		users:    make(map[string]domain.UserPresence),
	}
}

func (g *MemoryGateway) InsertMessage(ctx context.Context, msg *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages[msg.Room] = append(g.messages[msg.Room], *msg)
	return nil
}

func (g *MemoryGateway) UpsertUserPresence(ctx context.Context, username string, isOnline bool, lastSeen time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.users[username] = domain.UserPresence{
		Username: username,
		IsOnline: isOnline,
		LastSeen: lastSeen,
	}
	return nil
}

func (g *MemoryGateway) FindRecentMessages(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []domain.Message{}, nil
	}

	g.mu.RLock()
	stored := g.messages[room]
	out := make([]domain.Message, len(stored))
	copy(out, stored)
	g.mu.RUnlock()

	// Newest first; equal timestamps keep reverse insertion order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *MemoryGateway) FindAllUsers(ctx context.Context) ([]domain.UserPresence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.UserPresence, 0, len(g.users))
	for _, u := range g.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out, nil
}

func (g *MemoryGateway) Close() error {
	return nil
}
