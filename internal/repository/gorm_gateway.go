package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/chat-relay/internal/domain"
	"github.com/weiawesome/chat-relay/pkg/database"
)

// GormGateway implements Gateway on any GORM dialect.
type GormGateway struct {
	db *gorm.DB
}

// NewGormGateway migrates the schema and returns a gateway on db.
func NewGormGateway(db *gorm.DB) (*GormGateway, error) {
	if err := database.AutoMigrate(db, &MessageModel{}, &UserPresenceModel{}); err != nil {
		return nil, err
	}
	return &GormGateway{db: db}, nil
}

func (r *GormGateway) InsertMessage(ctx context.Context, msg *domain.Message) error {
	if err := r.db.WithContext(ctx).Create(MessageToModel(msg)).Error; err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (r *GormGateway) UpsertUserPresence(ctx context.Context, username string, isOnline bool, lastSeen time.Time) error {
	model := &UserPresenceModel{
		Username: username,
		IsOnline: isOnline,
		LastSeen: lastSeen,
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_online", "last_seen"}),
	}).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert presence: %w", result.Error)
	}
	return nil
}

func (r *GormGateway) FindRecentMessages(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}

	var models []MessageModel
	result := r.db.WithContext(ctx).
		Where("room = ?", room).
		Order("sent_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find messages: %w", result.Error)
	}

	messages := make([]domain.Message, 0, len(models))
	for i := range models {
		messages = append(messages, models[i].ToDomain())
	}
	return messages, nil
}

func (r *GormGateway) FindAllUsers(ctx context.Context) ([]domain.UserPresence, error) {
	var models []UserPresenceModel
	if err := r.db.WithContext(ctx).Order("last_seen DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}

	users := make([]domain.UserPresence, 0, len(models))
	for i := range models {
		users = append(users, models[i].ToDomain())
	}
	return users, nil
}

func (r *GormGateway) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
