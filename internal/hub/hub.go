package hub

import (
	"sync"

	"github.com/weiawesome/chat-relay/internal/config"
	"github.com/weiawesome/chat-relay/internal/domain"
	"github.com/weiawesome/chat-relay/pkg/log"
)

// RoomIndex resolves the connections currently joined to a room.
type RoomIndex interface {
	ConnectionIDs(room string) []string
}

// Hub owns every live client and fans events out to them. All deliveries
// pass through Run, so each client sees events in the order they were
// submitted.
type Hub struct {
	clients    map[string]*Client // clientID -> client
	rooms      RoomIndex
	register   chan *Client
	unregister chan *Client
	outbound   chan *Delivery
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

// Delivery is one encoded event addressed either to a room or to a single
// client. Exclude only applies to room deliveries.
type Delivery struct {
	Room    string
	Target  string
	Exclude string
	Data    []byte
}

func NewHub(rooms RoomIndex, cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      rooms,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan *Delivery, 256),
		done:       make(chan struct{}),
		config:     cfg,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			if h.removeClient(client) {
				l := log.L()
				l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client unregistered")
			}

		case d := <-h.outbound:
			h.deliver(d)

		case <-h.done:
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.Send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop terminates Run and closes every client's send queue.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToRoom queues event for every client joined to room except exclude.
func (h *Hub) BroadcastToRoom(room, event string, payload interface{}, exclude string) error {
	data, err := domain.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	h.submit(&Delivery{Room: room, Exclude: exclude, Data: data})
	return nil
}

// SendToConnection queues event for one client. Unknown clients are ignored.
func (h *Hub) SendToConnection(connectionID, event string, payload interface{}) error {
	data, err := domain.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	h.submit(&Delivery{Target: connectionID, Data: data})
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) submit(d *Delivery) {
	select {
	case h.outbound <- d:
	case <-h.done:
	}
}

func (h *Hub) deliver(d *Delivery) {
	if d.Target != "" {
		h.mu.RLock()
		client, ok := h.clients[d.Target]
		h.mu.RUnlock()
		if ok {
			h.enqueue(client, d.Data)
		}
		return
	}

	for _, id := range h.rooms.ConnectionIDs(d.Room) {
		if id == d.Exclude {
			continue
		}
		h.mu.RLock()
		client, ok := h.clients[id]
		h.mu.RUnlock()
		if ok {
			h.enqueue(client, d.Data)
		}
	}
}

// enqueue drops a client whose queue is full. Closing its queue makes the
// writer close the socket, which runs the normal disconnect path.
func (h *Hub) enqueue(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		l := log.L()
		l.Warn().Str(log.FieldConnectionID, client.ID).Msg("send buffer full, dropping client")
		h.removeClient(client)
	}
}

func (h *Hub) removeClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[client.ID]; ok && c == client {
		delete(h.clients, client.ID)
		close(client.Send)
		return true
	}
	return false
}
