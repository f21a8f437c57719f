package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/weiawesome/chat-relay/internal/audit"
	"github.com/weiawesome/chat-relay/internal/config"
	"github.com/weiawesome/chat-relay/internal/domain"
	"github.com/weiawesome/chat-relay/internal/idgen"
	"github.com/weiawesome/chat-relay/internal/kafka"
	"github.com/weiawesome/chat-relay/internal/registry"
	"github.com/weiawesome/chat-relay/internal/repository"
	"github.com/weiawesome/chat-relay/pkg/log"
)

// Messages shown to clients in "error" events.
const (
	MsgUsernameRequired = "username required"
	MsgAlreadyJoined    = "already joined"
	MsgJoinFailed       = "failed to join"
	MsgJoinFirst        = "Please join with a username first"
	MsgMessageRequired  = "message required"
	MsgMessageTooLong   = "message too long"
	MsgSendFailed       = "Failed to send message"
)

type chatService struct {
	broadcaster Broadcaster
	registry    registry.Registry
	repo        repository.Gateway
	history     HistoryService
	producer    kafka.MessageProducer
	ids         idgen.Generator
	cfg         config.ChatConfig
	now         func() time.Time
}

func NewChatService(
	b Broadcaster,
	reg registry.Registry,
	repo repository.Gateway,
	history HistoryService,
	producer kafka.MessageProducer,
	ids idgen.Generator,
	cfg config.ChatConfig,
) ChatService {
	if producer == nil {
		producer = kafka.NopProducer{}
	}
	if cfg.DefaultRoom == "" {
		cfg.DefaultRoom = domain.DefaultRoom
	}
	return &chatService{
		broadcaster: b,
		registry:    reg,
		repo:        repo,
		history:     history,
		producer:    producer,
		ids:         ids,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *chatService) HandleJoin(ctx context.Context, sess *domain.Session, username string) error {
	switch sess.State() {
	case domain.StateClosed:
		return nil
	case domain.StateJoined:
		return s.fail(ctx, sess, domain.NewProtocolError(MsgAlreadyJoined, domain.ErrAlreadyJoined))
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return s.fail(ctx, sess, domain.NewValidationError(MsgUsernameRequired))
	}
	room := s.cfg.DefaultRoom

	if err := s.repo.UpsertUserPresence(ctx, username, true, s.now()); err != nil {
		audit.LogWithDetail(ctx, audit.ActionJoinFailed, username, room, err.Error(), "join failed")
		return s.fail(ctx, sess, domain.NewPersistenceError(MsgJoinFailed, err))
	}

	if err := s.registry.Register(sess.ID, username, room); err != nil {
		return s.fail(ctx, sess, domain.NewProtocolError(MsgAlreadyJoined, err))
	}
	if err := sess.Join(username, room); err != nil {
		s.registry.Unregister(sess.ID)
		if errors.Is(err, domain.ErrSessionClosed) {
			return nil
		}
		return s.fail(ctx, sess, domain.NewProtocolError(MsgAlreadyJoined, err))
	}

	l := log.Ctx(ctx)
	messages, err := s.history.LoadRecent(ctx, room, s.cfg.HistoryLimit)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to load history")
		messages = []domain.Message{}
	}
	if err := s.broadcaster.SendToConnection(sess.ID, domain.EventPreviousMessages, messages); err != nil {
		l.Error().Err(err).Msg("failed to send previous messages")
	}

	event := domain.PresenceEvent{
		Username:    username,
		OnlineUsers: s.registry.ListUsernames(room),
	}
	if err := s.broadcaster.BroadcastToRoom(room, domain.EventUserJoined, event, ""); err != nil {
		l.Error().Err(err).Msg("failed to broadcast user joined")
	}

	audit.LogWithDetail(ctx, audit.ActionJoin, username, room, sess.ID, "user joined")
	return nil
}

func (s *chatService) HandleChatMessage(ctx context.Context, sess *domain.Session, body string) error {
	if sess.IsClosed() {
		return nil
	}
	username, room, ok := sess.Identity()
	if !ok {
		return s.fail(ctx, sess, domain.NewProtocolError(MsgJoinFirst, domain.ErrNotJoined))
	}

	if strings.TrimSpace(body) == "" {
		return s.fail(ctx, sess, domain.NewValidationError(MsgMessageRequired))
	}
	if s.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(body) > s.cfg.MaxMessageLength {
		return s.fail(ctx, sess, domain.NewValidationError(MsgMessageTooLong))
	}

	id, err := s.ids.Generate()
	if err != nil {
		return s.fail(ctx, sess, domain.NewPersistenceError(MsgSendFailed, err))
	}

	msg := &domain.Message{
		ID:        id,
		Username:  username,
		Body:      body,
		Room:      room,
		Timestamp: s.now(),
	}
	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		return s.fail(ctx, sess, domain.NewPersistenceError(MsgSendFailed, err))
	}
	s.history.Invalidate(ctx, room)

	l := log.Ctx(ctx)
	event := domain.ChatMessageEvent{
		Username:  msg.Username,
		Message:   msg.Body,
		Timestamp: msg.Timestamp,
	}
	if err := s.broadcaster.BroadcastToRoom(room, domain.EventChatMessage, event, ""); err != nil {
		l.Error().Err(err).Msg("failed to broadcast chat message")
	}

	if err := s.producer.ProduceMessage(ctx, msg); err != nil {
		l.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to produce chat message")
	}

	audit.LogWithDetail(ctx, audit.ActionSendMessage, username, room, msg.ID, "message sent")
	return nil
}

func (s *chatService) HandleTyping(ctx context.Context, sess *domain.Session, isTyping bool) error {
	username, room, ok := sess.Identity()
	if !ok {
		return nil
	}

	event := domain.TypingEvent{Username: username, IsTyping: isTyping}
	if err := s.broadcaster.BroadcastToRoom(room, domain.EventTyping, event, sess.ID); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to broadcast typing")
	}
	return nil
}

// HandleDisconnect closes the session. A session that never joined leaves no
// trace.
func (s *chatService) HandleDisconnect(ctx context.Context, sess *domain.Session) error {
	wasJoined, username, room := sess.Close()
	if !wasJoined {
		return nil
	}

	s.registry.Unregister(sess.ID)

	l := log.Ctx(ctx)
	var result error
	if err := s.repo.UpsertUserPresence(ctx, username, false, s.now()); err != nil {
		l.Error().Err(err).Str(log.FieldUsername, username).Msg("failed to mark user offline")
		result = domain.NewPersistenceError("failed to mark user offline", err)
	}

	event := domain.PresenceEvent{
		Username:    username,
		OnlineUsers: s.registry.ListUsernames(room),
	}
	if err := s.broadcaster.BroadcastToRoom(room, domain.EventUserLeft, event, sess.ID); err != nil {
		l.Error().Err(err).Msg("failed to broadcast user left")
	}

	l.Debug().Str(log.FieldUsername, username).Dur("online_for", s.now().Sub(sess.JoinedAt())).Msg("user left")
	audit.Log(ctx, audit.ActionDisconnect, username, room, "user left")
	return result
}

func (s *chatService) ReportError(ctx context.Context, sess *domain.Session, ev *domain.EventError) error {
	return s.fail(ctx, sess, ev)
}

// fail logs ev, sends its message to the connection and returns it.
func (s *chatService) fail(ctx context.Context, sess *domain.Session, ev *domain.EventError) error {
	l := log.Ctx(ctx)
	evt := l.Warn()
	if errors.Is(ev, domain.ErrPersistence) {
		evt = l.Error()
	}
	evt.Err(ev).Msg("event rejected")

	if err := s.broadcaster.SendToConnection(sess.ID, domain.EventErrorMessage, ev.Message); err != nil {
		l.Error().Err(err).Msg("failed to send error event")
	}
	return ev
}
