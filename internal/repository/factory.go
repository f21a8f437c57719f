package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/weiawesome/chat-relay/internal/config"
	"github.com/weiawesome/chat-relay/pkg/database"
)

// New builds the Gateway selected by cfg.Store.Driver.
func New(ctx context.Context, cfg *config.Config) (Gateway, error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case "", "memory":
		return NewMemoryGateway(), nil
	case "gorm", "sql":
		db, err := database.New(&cfg.Database)
		if err != nil {
			return nil, err
		}
		return NewGormGateway(db)
	case "mongo", "mongodb":
		return NewMongoGateway(ctx, cfg.Mongo)
	case "cassandra":
		return NewCassandraGateway(cfg.Cassandra)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Store.Driver)
	}
}
