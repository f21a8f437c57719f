package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/chat-relay/internal/config"
	"github.com/weiawesome/chat-relay/internal/domain"
	"github.com/weiawesome/chat-relay/internal/hub"
	"github.com/weiawesome/chat-relay/internal/service"
	"github.com/weiawesome/chat-relay/pkg/log"
)

const (
	msgInvalidFormat  = "invalid message format"
	msgInvalidPayload = "invalid payload"
	msgUnknownEvent   = "unknown event"
)

type WSHandler struct {
	hub       *hub.Hub
	service   service.ChatService
	wsCfg     config.WebSocketConfig
	upgrader  websocket.Upgrader
	opTimeout time.Duration
	conns     sync.WaitGroup // open connections whose disconnect has not finished
}

// NewWSHandler accepts upgrades from allowedOrigins; "*" allows any origin.
// opTimeout bounds the store work done for a single event.
func NewWSHandler(
	h *hub.Hub,
	svc service.ChatService,
	wsCfg config.WebSocketConfig,
	allowedOrigins []string,
	opTimeout time.Duration,
) *WSHandler {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &WSHandler{
		hub:       h,
		service:   svc,
		wsCfg:     wsCfg,
		upgrader:  createUpgrader(allowedOrigins),
		opTimeout: opTimeout,
	}
}

func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := false
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowedMap[origin] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			if allowAll || origin == "" {
				return true
			}
			return allowedMap[origin]
		},
	}
}

// HandleWebSocket handles GET /ws
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := log.Ctx(r.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)

	// The request context ends when this handler returns; the connection
	// outlives it.
	ctx := log.WithConnection(context.WithoutCancel(r.Context()), client.ID)
	l := log.Ctx(ctx)
	l.Debug().Msg("connection opened")

	h.conns.Add(1)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(
		func(c *hub.Client, message []byte) { h.handleMessage(ctx, c, message) },
		func(c *hub.Client) {
			defer h.conns.Done()
			h.handleClose(ctx, c)
		},
	)
}

// Drain blocks until every accepted connection has run its disconnect
// handling, or ctx ends. Call it after the hub is stopped and before the
// store is closed.
func (h *WSHandler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, message []byte) {
	ctx, cancel := context.WithTimeout(ctx, h.opTimeout)
	defer cancel()

	if username, room, ok := client.Session.Identity(); ok {
		l := log.Ctx(ctx)
		ctx = log.WithLogger(ctx, l.With().Str(log.FieldUsername, username).Str(log.FieldRoom, room).Logger())
	}

	var env domain.Envelope
	if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
		h.service.ReportError(ctx, client.Session, domain.NewProtocolError(msgInvalidFormat, err))
		return
	}

	var err error
	switch env.Event {
	case domain.EventJoin:
		var req domain.JoinRequest
		if !decodePayload(env.Data, &req) {
			err = h.service.ReportError(ctx, client.Session, domain.NewValidationError(msgInvalidPayload))
			break
		}
		err = h.service.HandleJoin(ctx, client.Session, req.Username)

	case domain.EventChatMessage:
		var req domain.ChatMessageRequest
		if !decodePayload(env.Data, &req) {
			err = h.service.ReportError(ctx, client.Session, domain.NewValidationError(msgInvalidPayload))
			break
		}
		err = h.service.HandleChatMessage(ctx, client.Session, req.Message)

	case domain.EventTyping:
		var req domain.TypingRequest
		if !decodePayload(env.Data, &req) {
			err = h.service.ReportError(ctx, client.Session, domain.NewValidationError(msgInvalidPayload))
			break
		}
		err = h.service.HandleTyping(ctx, client.Session, req.IsTyping)

	default:
		err = h.service.ReportError(ctx, client.Session, domain.NewProtocolError(msgUnknownEvent+": "+env.Event, nil))
	}

	if err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Str(log.FieldEvent, env.Event).Msg("event handled with error")
	}
}

// decodePayload treats a missing payload as the zero value.
func decodePayload(data json.RawMessage, v interface{}) bool {
	if len(data) == 0 || string(data) == "null" {
		return true
	}
	return json.Unmarshal(data, v) == nil
}

func (h *WSHandler) handleClose(ctx context.Context, client *hub.Client) {
	ctx, cancel := context.WithTimeout(ctx, h.opTimeout)
	defer cancel()

	if err := h.service.HandleDisconnect(ctx, client.Session); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("disconnect handled with error")
	}
	l := log.Ctx(ctx)
	l.Debug().Dur("age", time.Since(client.Session.CreatedAt)).Msg("connection closed")
}
