package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/weiawesome/chat-relay/internal/cache"
	"github.com/weiawesome/chat-relay/internal/config"
	"github.com/weiawesome/chat-relay/internal/handler"
	"github.com/weiawesome/chat-relay/internal/hub"
	"github.com/weiawesome/chat-relay/internal/idgen"
	"github.com/weiawesome/chat-relay/internal/kafka"
	"github.com/weiawesome/chat-relay/internal/registry"
	"github.com/weiawesome/chat-relay/internal/repository"
	"github.com/weiawesome/chat-relay/internal/service"
	pkglog "github.com/weiawesome/chat-relay/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "chat-relay"})
	logger := pkglog.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting chat-relay")

	// Persistence
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	repo, err := repository.New(ctx, cfg)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to create store")
	}
	defer repo.Close()
	logger.Info().Str("driver", cfg.Store.Driver).Msg("store ready")

	// Optional history cache
	var historyCache cache.HistoryCache
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisHistoryCache(cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create redis cache")
		}
		defer redisCache.Close()
		historyCache = redisCache
		logger.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
	}

	// Optional outbound message stream
	producer, err := kafka.New(cfg.Kafka)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create kafka producer")
	}
	defer producer.Close()
	if cfg.Kafka.Enabled {
		logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("connected to kafka")
	}

	ids, err := idgen.New(cfg.ID)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create id generator")
	}

	// Registry and hub
	reg := registry.NewMemoryRegistry()
	wsHub := hub.NewHub(reg, cfg.WebSocket)
	go wsHub.Run()

	// Services
	historySvc := service.NewHistoryService(repo, historyCache, cfg.Redis.CacheTTL, cfg.Chat.APIHistoryLimit)
	chatSvc := service.NewChatService(wsHub, reg, repo, historySvc, producer, ids, cfg.Chat)

	// Handlers
	wsHandler := handler.NewWSHandler(wsHub, chatSvc, cfg.WebSocket, cfg.CORS.AllowedOrigins, cfg.Store.Timeout)
	httpHandler := handler.NewHTTPHandler(historySvc, cfg.Chat.DefaultRoom, cfg.Chat.APIHistoryLimit)
	router := handler.NewRouter(wsHandler, httpHandler, handler.RouterConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		StaticDir:      cfg.Server.StaticDir,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("chat-relay listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat-relay")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Hijacked websocket connections outlive Shutdown. Close them and let
	// their disconnect handling mark users offline before the store closes.
	logger.Info().Int("connections", wsHub.ClientCount()).Msg("closing websocket connections")
	wsHub.Stop()
	if err := wsHandler.Drain(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("timed out waiting for disconnects")
	}

	logger.Info().Msg("chat-relay stopped")
}
