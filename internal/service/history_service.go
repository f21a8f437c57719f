package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/chat-relay/internal/cache"
	"github.com/weiawesome/chat-relay/internal/domain"
	"github.com/weiawesome/chat-relay/internal/repository"
	"github.com/weiawesome/chat-relay/pkg/log"
)

// fetchTimeout bounds a shared history load.
const fetchTimeout = 10 * time.Second

type historyService struct {
	repo     repository.Gateway
	cache    cache.HistoryCache // nil when caching is disabled
	cacheTTL time.Duration
	apiLimit int
	sf       singleflight.Group
}

func NewHistoryService(
	repo repository.Gateway,
	historyCache cache.HistoryCache,
	cacheTTL time.Duration,
	apiLimit int,
) HistoryService {
	if apiLimit <= 0 {
		apiLimit = 100
	}
	return &historyService{
		repo:     repo,
		cache:    historyCache,
		cacheTTL: cacheTTL,
		apiLimit: apiLimit,
	}
}

func (s *historyService) LoadRecent(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}

	// The shared load runs detached; each caller waits on its own context.
	key := fmt.Sprintf("%s:%d", room, limit)
	ch := s.sf.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return s.fetchWithCache(fetchCtx, room, limit)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}

	shared, ok := res.Val.([]domain.Message)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	out := make([]domain.Message, len(shared))
	copy(out, shared)
	return out, nil
}

func (s *historyService) fetchWithCache(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	var version int64
	if s.cache != nil {
		cached, v, err := s.cache.Get(ctx, room, limit)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoom, room).Msg("cache get error")
		}
		version = v
	}

	newest, err := s.repo.FindRecentMessages(ctx, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages from repository: %w", err)
	}
	messages := chronological(newest, limit)

	if s.cache != nil {
		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.cache.Set(cacheCtx, room, version, limit, messages, s.cacheTTL); err != nil {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldRoom, room).Msg("cache set error")
			}
		}()
	}

	return messages, nil
}

// chronological turns a newest-first page into oldest-first order, at most
// limit long. The sort is stable so equal timestamps keep store order.
func chronological(newest []domain.Message, limit int) []domain.Message {
	if len(newest) > limit {
		newest = newest[:limit]
	}
	out := make([]domain.Message, len(newest))
	for i, m := range newest {
		out[len(newest)-1-i] = m
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func (s *historyService) GetMessages(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > s.apiLimit {
		limit = s.apiLimit
	}
	return s.LoadRecent(ctx, room, limit)
}

func (s *historyService) GetAllUsers(ctx context.Context) ([]domain.UserPresence, error) {
	users, err := s.repo.FindAllUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get users from repository: %w", err)
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].LastSeen.After(users[j].LastSeen)
	})
	if users == nil {
		users = []domain.UserPresence{}
	}
	return users, nil
}

func (s *historyService) Invalidate(ctx context.Context, room string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, room); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoom, room).Msg("cache invalidate error")
	}
}
