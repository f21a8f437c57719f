package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/chat-relay/internal/config"
	"github.com/weiawesome/chat-relay/internal/domain"
	"github.com/weiawesome/chat-relay/internal/idgen"
	"github.com/weiawesome/chat-relay/internal/registry"
)

type recordingProducer struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (p *recordingProducer) ProduceMessage(_ context.Context, msg *domain.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, *msg)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

type fixture struct {
	svc      ChatService
	b        *recordingBroadcaster
	reg      *registry.MemoryRegistry
	gw       *flakyGateway
	producer *recordingProducer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		b:        &recordingBroadcaster{},
		reg:      registry.NewMemoryRegistry(),
		gw:       newFlakyGateway(),
		producer: &recordingProducer{},
	}
	history := NewHistoryService(f.gw, nil, 0, 100)
	f.svc = NewChatService(f.b, f.reg, f.gw, history, f.producer, idgen.NewULIDGenerator(), config.ChatConfig{
		DefaultRoom:      "general",
		HistoryLimit:     50,
		MaxMessageLength: 20,
	})
	return f
}

func (f *fixture) join(t *testing.T, id, username string) *domain.Session {
	t.Helper()
	sess := domain.NewSession(id)
	require.NoError(t, f.svc.HandleJoin(context.Background(), sess, username))
	return sess
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

func errorText(t *testing.T, s sent) string {
	t.Helper()
	var msg string
	decode(t, s.Data, &msg)
	return msg
}

func TestJoinSendsHistoryThenAnnouncesPresence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.gw.InsertMessage(ctx, &domain.Message{ID: "1", Username: "bob", Body: "earlier", Room: "general", Timestamp: time.Now().Add(-time.Minute).UTC()}))

	sess := f.join(t, "c1", "alice")

	calls := f.b.events()
	require.Len(t, calls, 2)

	assert.Equal(t, domain.EventPreviousMessages, calls[0].Event)
	assert.Equal(t, "c1", calls[0].Target)
	var history []domain.Message
	decode(t, calls[0].Data, &history)
	require.Len(t, history, 1)
	assert.Equal(t, "earlier", history[0].Body)

	assert.Equal(t, domain.EventUserJoined, calls[1].Event)
	assert.Equal(t, "general", calls[1].Room)
	assert.Empty(t, calls[1].Exclude)
	var presence domain.PresenceEvent
	decode(t, calls[1].Data, &presence)
	assert.Equal(t, "alice", presence.Username)
	assert.Equal(t, []string{"alice"}, presence.OnlineUsers)

	assert.True(t, sess.IsJoined())
	entry, ok := f.reg.Lookup("c1")
	require.True(t, ok)
	assert.Equal(t, "alice", entry.Username)
	assert.Equal(t, "general", entry.Room)

	users, err := f.gw.FindAllUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].IsOnline)
}

func TestJoinRequiresUsername(t *testing.T) {
	for _, name := range []string{"", "   "} {
		f := newFixture(t)
		sess := domain.NewSession("c1")

		err := f.svc.HandleJoin(context.Background(), sess, name)
		assert.ErrorIs(t, err, domain.ErrValidation)

		errs := f.b.byEvent(domain.EventErrorMessage)
		require.Len(t, errs, 1)
		assert.Equal(t, "c1", errs[0].Target)
		assert.Equal(t, MsgUsernameRequired, errorText(t, errs[0]))

		assert.Equal(t, domain.StateUnjoined, sess.State())
		assert.Equal(t, 0, f.reg.Count())
		_, upserts, _ := f.gw.counts()
		assert.Equal(t, 0, upserts)
	}
}

func TestJoinTwiceIsProtocolError(t *testing.T) {
	f := newFixture(t)
	sess := f.join(t, "c1", "alice")
	f.b.reset()

	err := f.svc.HandleJoin(context.Background(), sess, "alice2")
	assert.ErrorIs(t, err, domain.ErrProtocol)

	errs := f.b.byEvent(domain.EventErrorMessage)
	require.Len(t, errs, 1)
	assert.Equal(t, MsgAlreadyJoined, errorText(t, errs[0]))
	assert.Equal(t, []string{"alice"}, f.reg.ListUsernames("general"))
}

func TestJoinPersistenceFailureRegistersNothing(t *testing.T) {
	f := newFixture(t)
	f.gw.set(func(g *flakyGateway) { g.failUpsert = true })
	sess := domain.NewSession("c1")

	err := f.svc.HandleJoin(context.Background(), sess, "alice")
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.ErrorIs(t, err, errStoreDown)

	errs := f.b.byEvent(domain.EventErrorMessage)
	require.Len(t, errs, 1)
	assert.Equal(t, MsgJoinFailed, errorText(t, errs[0]))
	assert.Empty(t, f.b.byEvent(domain.EventUserJoined))
	assert.Equal(t, 0, f.reg.Count())
	assert.Equal(t, domain.StateUnjoined, sess.State())

	// The connection may retry once the store recovers.
	f.gw.set(func(g *flakyGateway) { g.failUpsert = false })
	require.NoError(t, f.svc.HandleJoin(context.Background(), sess, "alice"))
	assert.True(t, sess.IsJoined())
}

func TestJoinHistoryFailureSendsEmptyBacklog(t *testing.T) {
	f := newFixture(t)
	f.gw.set(func(g *flakyGateway) { g.failFind = true })

	sess := f.join(t, "c1", "alice")
	assert.True(t, sess.IsJoined())

	prev := f.b.byEvent(domain.EventPreviousMessages)
	require.Len(t, prev, 1)
	assert.JSONEq(t, `[]`, string(prev[0].Data))
	assert.Len(t, f.b.byEvent(domain.EventUserJoined), 1)
}

func TestChatMessageBeforeJoin(t *testing.T) {
	f := newFixture(t)
	sess := domain.NewSession("c1")

	err := f.svc.HandleChatMessage(context.Background(), sess, "hello")
	assert.ErrorIs(t, err, domain.ErrProtocol)

	errs := f.b.byEvent(domain.EventErrorMessage)
	require.Len(t, errs, 1)
	assert.Equal(t, MsgJoinFirst, errorText(t, errs[0]))
	assert.Empty(t, f.b.byEvent(domain.EventChatMessage))

	inserts, upserts, _ := f.gw.counts()
	assert.Equal(t, 0, inserts)
	assert.Equal(t, 0, upserts)
	assert.Equal(t, 0, f.reg.Count())
}

func TestChatMessagePersistsThenBroadcastsToWholeRoom(t *testing.T) {
	f := newFixture(t)
	sess := f.join(t, "c1", "alice")
	f.b.reset()
	before := time.Now().UTC()

	require.NoError(t, f.svc.HandleChatMessage(context.Background(), sess, "hi bob"))

	msgs := f.b.byEvent(domain.EventChatMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, "general", msgs[0].Room)
	assert.Empty(t, msgs[0].Exclude)
	var ev domain.ChatMessageEvent
	decode(t, msgs[0].Data, &ev)
	assert.Equal(t, "alice", ev.Username)
	assert.Equal(t, "hi bob", ev.Message)
	assert.False(t, ev.Timestamp.Before(before.Truncate(time.Second)))

	stored, err := f.gw.FindRecentMessages(context.Background(), "general", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "hi bob", stored[0].Body)
	assert.NotEmpty(t, stored[0].ID)

	require.Len(t, f.producer.messages, 1)
	assert.Equal(t, stored[0].ID, f.producer.messages[0].ID)
}

func TestChatMessageNotBroadcastWhenPersistFails(t *testing.T) {
	f := newFixture(t)
	sess := f.join(t, "c1", "alice")
	f.b.reset()
	f.gw.set(func(g *flakyGateway) { g.failInsert = true })

	err := f.svc.HandleChatMessage(context.Background(), sess, "lost")
	assert.ErrorIs(t, err, domain.ErrPersistence)

	assert.Empty(t, f.b.byEvent(domain.EventChatMessage))
	errs := f.b.byEvent(domain.EventErrorMessage)
	require.Len(t, errs, 1)
	assert.Equal(t, "c1", errs[0].Target)
	assert.Equal(t, MsgSendFailed, errorText(t, errs[0]))
	assert.Empty(t, f.producer.messages)
	assert.True(t, sess.IsJoined())
}

func TestChatMessageValidation(t *testing.T) {
	f := newFixture(t)
	sess := f.join(t, "c1", "alice")

	cases := []struct {
		body string
		want string
	}{
		{"", MsgMessageRequired},
		{"  \t ", MsgMessageRequired},
		{strings.Repeat("x", 21), MsgMessageTooLong},
	}
	for _, tc := range cases {
		f.b.reset()
		err := f.svc.HandleChatMessage(context.Background(), sess, tc.body)
		assert.ErrorIs(t, err, domain.ErrValidation)
		errs := f.b.byEvent(domain.EventErrorMessage)
		require.Len(t, errs, 1)
		assert.Equal(t, tc.want, errorText(t, errs[0]))
	}

	// Length counts characters, not bytes.
	f.b.reset()
	require.NoError(t, f.svc.HandleChatMessage(context.Background(), sess, strings.Repeat("é", 20)))
	inserts, _, _ := f.gw.counts()
	assert.Equal(t, 1, inserts)
}

func TestTypingExcludesSender(t *testing.T) {
	f := newFixture(t)
	sess := f.join(t, "c1", "alice")
	f.b.reset()

	require.NoError(t, f.svc.HandleTyping(context.Background(), sess, true))

	calls := f.b.events()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.EventTyping, calls[0].Event)
	assert.Equal(t, "c1", calls[0].Exclude)
	assert.JSONEq(t, `{"username":"alice","isTyping":true}`, string(calls[0].Data))
}

func TestTypingBeforeJoinIsIgnored(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.HandleTyping(context.Background(), domain.NewSession("c1"), true))
	assert.Empty(t, f.b.events())
}

func TestDisconnectMarksOfflineAndAnnounces(t *testing.T) {
	f := newFixture(t)
	alice := f.join(t, "c1", "alice")
	f.join(t, "c2", "bob")
	f.b.reset()
	disconnectAt := time.Now().UTC()

	require.NoError(t, f.svc.HandleDisconnect(context.Background(), alice))

	assert.Equal(t, domain.StateClosed, alice.State())
	_, ok := f.reg.Lookup("c1")
	assert.False(t, ok)

	left := f.b.byEvent(domain.EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "c1", left[0].Exclude)
	var presence domain.PresenceEvent
	decode(t, left[0].Data, &presence)
	assert.Equal(t, "alice", presence.Username)
	assert.Equal(t, []string{"bob"}, presence.OnlineUsers)

	users, err := f.gw.FindAllUsers(context.Background())
	require.NoError(t, err)
	for _, u := range users {
		if u.Username == "alice" {
			assert.False(t, u.IsOnline)
			assert.False(t, u.LastSeen.Before(disconnectAt))
		}
	}
}

func TestDisconnectWithoutJoinIsNoop(t *testing.T) {
	f := newFixture(t)
	sess := domain.NewSession("c1")

	require.NoError(t, f.svc.HandleDisconnect(context.Background(), sess))
	assert.Empty(t, f.b.events())
	_, upserts, _ := f.gw.counts()
	assert.Equal(t, 0, upserts)
	assert.Equal(t, domain.StateClosed, sess.State())
}

func TestDisconnectStillAnnouncesWhenStoreFails(t *testing.T) {
	f := newFixture(t)
	sess := f.join(t, "c1", "alice")
	f.gw.set(func(g *flakyGateway) { g.failUpsert = true })
	f.b.reset()

	err := f.svc.HandleDisconnect(context.Background(), sess)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Len(t, f.b.byEvent(domain.EventUserLeft), 1)
	assert.Equal(t, 0, f.reg.Count())
}

func TestEventsAfterCloseAreIgnored(t *testing.T) {
	f := newFixture(t)
	sess := f.join(t, "c1", "alice")
	require.NoError(t, f.svc.HandleDisconnect(context.Background(), sess))
	f.b.reset()
	inserts, upserts, _ := f.gw.counts()

	ctx := context.Background()
	assert.NoError(t, f.svc.HandleJoin(ctx, sess, "alice"))
	assert.NoError(t, f.svc.HandleChatMessage(ctx, sess, "ghost"))
	assert.NoError(t, f.svc.HandleTyping(ctx, sess, true))
	assert.NoError(t, f.svc.HandleDisconnect(ctx, sess))

	assert.Empty(t, f.b.events())
	i2, u2, _ := f.gw.counts()
	assert.Equal(t, inserts, i2)
	assert.Equal(t, upserts, u2)
}

func TestSameUsernameOnTwoConnections(t *testing.T) {
	f := newFixture(t)
	tab1 := f.join(t, "c1", "alice")
	f.join(t, "c2", "alice")

	assert.Equal(t, []string{"alice", "alice"}, f.reg.ListUsernames("general"))
	users, err := f.gw.FindAllUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)

	f.b.reset()
	require.NoError(t, f.svc.HandleDisconnect(context.Background(), tab1))
	left := f.b.byEvent(domain.EventUserLeft)
	require.Len(t, left, 1)
	var presence domain.PresenceEvent
	decode(t, left[0].Data, &presence)
	assert.Equal(t, []string{"alice"}, presence.OnlineUsers)
}

// A connection is registered exactly when its session is joined, whatever
// sequence of events it goes through.
func TestRegistryTracksSessionState(t *testing.T) {
	type step func(f *fixture, s *domain.Session)
	join := func(name string) step {
		return func(f *fixture, s *domain.Session) { _ = f.svc.HandleJoin(context.Background(), s, name) }
	}
	chat := func(f *fixture, s *domain.Session) { _ = f.svc.HandleChatMessage(context.Background(), s, "hi") }
	typing := func(f *fixture, s *domain.Session) { _ = f.svc.HandleTyping(context.Background(), s, true) }
	disconnect := func(f *fixture, s *domain.Session) { _ = f.svc.HandleDisconnect(context.Background(), s) }
	failStore := func(f *fixture, s *domain.Session) {
		f.gw.set(func(g *flakyGateway) {
			g.failUpsert = true
			g.failInsert = true
		})
	}

	sequences := map[string][]step{
		"chat-join-chat":       {chat, join("alice"), chat},
		"blank-join":           {join(""), typing},
		"join-join":            {join("alice"), join("bob")},
		"join-disconnect":      {join("alice"), disconnect, join("alice")},
		"failed-join":          {failStore, join("alice"), chat},
		"join-fail-chat":       {join("alice"), failStore, chat, typing},
		"disconnect-first":     {disconnect, join("alice"), chat},
		"join-fail-disconnect": {join("alice"), failStore, disconnect},
	}

	for name, steps := range sequences {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			sess := domain.NewSession("c1")
			for _, s := range steps {
				s(f, sess)
				_, registered := f.reg.Lookup("c1")
				assert.Equal(t, sess.IsJoined(), registered)
			}
		})
	}
}
