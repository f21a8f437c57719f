package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/chat-relay/internal/config"
	"github.com/weiawesome/chat-relay/internal/domain"
	"github.com/weiawesome/chat-relay/internal/registry"
)

func newTestHub(t *testing.T, bufferSize int) (*Hub, *registry.MemoryRegistry) {
	t.Helper()
	reg := registry.NewMemoryRegistry()
	h := NewHub(reg, config.WebSocketConfig{SendBufferSize: bufferSize})
	go h.Run()
	t.Cleanup(h.Stop)
	return h, reg
}

func addClient(t *testing.T, h *Hub, reg *registry.MemoryRegistry, id, username, room string) *Client {
	t.Helper()
	c := NewClient(id, h, nil, h.config)
	h.Register(c)
	if username != "" {
		require.NoError(t, reg.Register(id, username, room))
	}
	return c
}

func receive(t *testing.T, c *Client) domain.Envelope {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send queue closed")
		var env domain.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(time.Second):
		t.Fatalf("no message for %s", c.ID)
	}
	return domain.Envelope{}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message for %s: %s", c.ID, data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastToRoomRespectsExclude(t *testing.T) {
	h, reg := newTestHub(t, 16)
	alice := addClient(t, h, reg, "a", "alice", "general")
	bob := addClient(t, h, reg, "b", "bob", "general")
	carol := addClient(t, h, reg, "c", "carol", "random")

	require.NoError(t, h.BroadcastToRoom("general", domain.EventTyping, domain.TypingEvent{Username: "alice", IsTyping: true}, "a"))

	env := receive(t, bob)
	assert.Equal(t, domain.EventTyping, env.Event)
	assert.JSONEq(t, `{"username":"alice","isTyping":true}`, string(env.Data))
	assertNothing(t, alice)
	assertNothing(t, carol)
}

func TestBroadcastSkipsUnjoinedClients(t *testing.T) {
	h, reg := newTestHub(t, 16)
	joined := addClient(t, h, reg, "a", "alice", "general")
	lurker := addClient(t, h, reg, "b", "", "")

	require.NoError(t, h.BroadcastToRoom("general", domain.EventUserJoined, domain.PresenceEvent{Username: "alice"}, ""))

	assert.Equal(t, domain.EventUserJoined, receive(t, joined).Event)
	assertNothing(t, lurker)
}

func TestSendToConnection(t *testing.T) {
	h, reg := newTestHub(t, 16)
	alice := addClient(t, h, reg, "a", "", "")

	require.NoError(t, h.SendToConnection("a", domain.EventErrorMessage, "username required"))
	require.NoError(t, h.SendToConnection("missing", domain.EventErrorMessage, "ignored"))

	env := receive(t, alice)
	assert.Equal(t, domain.EventErrorMessage, env.Event)
	assert.JSONEq(t, `"username required"`, string(env.Data))
	assertNothing(t, alice)
}

func TestPerConnectionOrdering(t *testing.T) {
	h, reg := newTestHub(t, 256)
	alice := addClient(t, h, reg, "a", "alice", "general")

	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			require.NoError(t, h.SendToConnection("a", domain.EventChatMessage, domain.ChatMessageEvent{Message: string(rune('A' + i%26))}))
		} else {
			require.NoError(t, h.BroadcastToRoom("general", domain.EventChatMessage, domain.ChatMessageEvent{Message: string(rune('A' + i%26))}, ""))
		}
	}

	for i := 0; i < 100; i++ {
		env := receive(t, alice)
		var ev domain.ChatMessageEvent
		require.NoError(t, json.Unmarshal(env.Data, &ev))
		assert.Equal(t, string(rune('A'+i%26)), ev.Message)
	}
}

func TestFullQueueDropsClient(t *testing.T) {
	h, reg := newTestHub(t, 1)
	slow := addClient(t, h, reg, "a", "alice", "general")

	require.NoError(t, h.SendToConnection("a", domain.EventErrorMessage, "one"))
	require.NoError(t, h.SendToConnection("a", domain.EventErrorMessage, "two"))

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, domain.EventErrorMessage, receive(t, slow).Event)
	_, ok := <-slow.Send
	assert.False(t, ok)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	h, reg := newTestHub(t, 4)
	c := addClient(t, h, reg, "a", "", "")
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	h.Unregister(c)
	h.Unregister(c)
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestStopClosesQueues(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	h := NewHub(reg, config.WebSocketConfig{SendBufferSize: 4})
	go h.Run()
	c := NewClient("a", h, nil, h.config)
	h.Register(c)

	h.Stop()
	select {
	case _, ok := <-c.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("queue was not closed on stop")
	}

	// Calls after stop must not block.
	h.Register(NewClient("b", h, nil, h.config))
	require.NoError(t, h.BroadcastToRoom("general", domain.EventTyping, nil, ""))
}
