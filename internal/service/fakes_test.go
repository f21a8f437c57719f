package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/weiawesome/chat-relay/internal/cache"
	"github.com/weiawesome/chat-relay/internal/domain"
	"github.com/weiawesome/chat-relay/internal/repository"
)

type sent struct {
	Room    string
	Target  string
	Exclude string
	Event   string
	Data    json.RawMessage
}

// recordingBroadcaster keeps every delivery in call order.
type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []sent
}

func (b *recordingBroadcaster) BroadcastToRoom(room, event string, payload interface{}, exclude string) error {
	return b.record(sent{Room: room, Exclude: exclude, Event: event}, payload)
}

func (b *recordingBroadcaster) SendToConnection(connectionID, event string, payload interface{}) error {
	return b.record(sent{Target: connectionID, Event: event}, payload)
}

func (b *recordingBroadcaster) record(s sent, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.Data = data
	b.mu.Lock()
	b.calls = append(b.calls, s)
	b.mu.Unlock()
	return nil
}

func (b *recordingBroadcaster) events() []sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]sent, len(b.calls))
	copy(out, b.calls)
	return out
}

func (b *recordingBroadcaster) byEvent(event string) []sent {
	var out []sent
	for _, s := range b.events() {
		if s.Event == event {
			out = append(out, s)
		}
	}
	return out
}

func (b *recordingBroadcaster) reset() {
	b.mu.Lock()
	b.calls = nil
	b.mu.Unlock()
}

var errStoreDown = errors.New("store down")

// flakyGateway wraps a MemoryGateway and fails the operations switched on.
type flakyGateway struct {
	*repository.MemoryGateway
	mu          sync.Mutex
	failInsert  bool
	failUpsert  bool
	failFind    bool
	insertCalls int
	upsertCalls int
	findCalls   int
	findDelay   time.Duration
}

func newFlakyGateway() *flakyGateway {
	return &flakyGateway{MemoryGateway: repository.NewMemoryGateway()}
}

func (g *flakyGateway) set(fn func(g *flakyGateway)) {
	g.mu.Lock()
	fn(g)
	g.mu.Unlock()
}

func (g *flakyGateway) InsertMessage(ctx context.Context, msg *domain.Message) error {
	g.mu.Lock()
	g.insertCalls++
	fail := g.failInsert
	g.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return g.MemoryGateway.InsertMessage(ctx, msg)
}

func (g *flakyGateway) UpsertUserPresence(ctx context.Context, username string, isOnline bool, lastSeen time.Time) error {
	g.mu.Lock()
	g.upsertCalls++
	fail := g.failUpsert
	g.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return g.MemoryGateway.UpsertUserPresence(ctx, username, isOnline, lastSeen)
}

func (g *flakyGateway) FindRecentMessages(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	g.mu.Lock()
	g.findCalls++
	fail, delay := g.failFind, g.findDelay
	g.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.MemoryGateway.FindRecentMessages(ctx, room, limit)
}

func (g *flakyGateway) counts() (insert, upsert, find int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.insertCalls, g.upsertCalls, g.findCalls
}

// memoryCache is an in-process HistoryCache with the same versioning rules
// as the Redis implementation.
type memoryCache struct {
	mu       sync.Mutex
	versions map[string]int64
	pages    map[string][]domain.Message
}

func newMemoryCache() *memoryCache {
	return &memoryCache{versions: map[string]int64{}, pages: map[string][]domain.Message{}}
}

func pageKey(room string, version int64, limit int) string {
	b, _ := json.Marshal([]interface{}{room, version, limit})
	return string(b)
}

func (c *memoryCache) Get(_ context.Context, room string, limit int) ([]domain.Message, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.versions[room]
	page, ok := c.pages[pageKey(room, v, limit)]
	if !ok {
		return nil, v, cache.ErrCacheMiss
	}
	return page, v, nil
}

func (c *memoryCache) Set(_ context.Context, room string, version int64, limit int, messages []domain.Message, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[pageKey(room, version, limit)] = messages
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, room string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[room]++
	return nil
}

func (c *memoryCache) Close() error { return nil }

func (c *memoryCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}
