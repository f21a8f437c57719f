package handler

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/weiawesome/chat-relay/pkg/log"
	"github.com/weiawesome/chat-relay/pkg/response"
)

// RouterConfig collects what NewRouter needs besides the handlers.
type RouterConfig struct {
	AllowedOrigins []string
	StaticDir      string
}

// NewRouter wires every route, the access log and CORS.
func NewRouter(ws *WSHandler, api *HTTPHandler, cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware(log.L()))

	router.HandleFunc("/ws", ws.HandleWebSocket).Methods("GET")
	router.HandleFunc("/api/messages", api.GetMessages).Methods("GET")
	router.HandleFunc("/api/messages/{room}", api.GetMessages).Methods("GET")
	router.HandleFunc("/api/users", api.GetUsers).Methods("GET")
	router.HandleFunc("/health", api.HealthCheck).Methods("GET")
	router.PathPrefix("/api/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "no such endpoint: "+r.URL.Path)
	})

	if cfg.StaticDir != "" {
		if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
			router.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDir)))
		}
	}

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})

	return c.Handler(router)
}
