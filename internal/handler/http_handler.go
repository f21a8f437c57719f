package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/weiawesome/chat-relay/internal/service"
	"github.com/weiawesome/chat-relay/pkg/log"
	"github.com/weiawesome/chat-relay/pkg/response"
)

// HTTPHandler serves the read-only history API.
type HTTPHandler struct {
	history     service.HistoryService
	defaultRoom string
	maxLimit    int
}

func NewHTTPHandler(history service.HistoryService, defaultRoom string, maxLimit int) *HTTPHandler {
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &HTTPHandler{
		history:     history,
		defaultRoom: defaultRoom,
		maxLimit:    maxLimit,
	}
}

// GetMessages handles GET /api/messages and GET /api/messages/{room}
func (h *HTTPHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	if room == "" {
		room = h.defaultRoom
	}

	limit := h.maxLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > h.maxLimit {
			response.BadRequest(w, "limit must be between 1 and "+strconv.Itoa(h.maxLimit))
			return
		}
		limit = n
	}

	messages, err := h.history.GetMessages(r.Context(), room, limit)
	if err != nil {
		l := log.Ctx(r.Context())
		l.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to get messages")
		response.InternalError(w, "Failed to fetch messages")
		return
	}

	response.Success(w, messages)
}

// GetUsers handles GET /api/users
func (h *HTTPHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.history.GetAllUsers(r.Context())
	if err != nil {
		l := log.Ctx(r.Context())
		l.Error().Err(err).Msg("failed to get users")
		response.InternalError(w, "Failed to fetch users")
		return
	}

	response.Success(w, users)
}

// HealthCheck handles GET /health
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{"status": "ok"})
}
