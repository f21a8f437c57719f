package repository

import (
	"time"

	"github.com/weiawesome/chat-relay/internal/domain"
)

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID       string    `gorm:"type:varchar(64);primaryKey"`
	Username string    `gorm:"type:varchar(100);not null"`
	Body     string    `gorm:"type:text;not null"`
	Room     string    `gorm:"type:varchar(100);not null;index:idx_messages_room_sent,priority:1"`
	SentAt   time.Time `gorm:"not null;index:idx_messages_room_sent,priority:2"`
}

func (MessageModel) TableName() string {
	return "messages"
}

func (m *MessageModel) ToDomain() domain.Message {
	return domain.Message{
		ID:        m.ID,
		Username:  m.Username,
		Body:      m.Body,
		Room:      m.Room,
		Timestamp: m.SentAt,
	}
}

func MessageToModel(msg *domain.Message) *MessageModel {
	return &MessageModel{
		ID:       msg.ID,
		Username: msg.Username,
		Body:     msg.Body,
		Room:     msg.Room,
		SentAt:   msg.Timestamp,
	}
}

// UserPresenceModel is the GORM model for the user_presences table.
// Username is the primary key, which makes upserts unique per user.
type UserPresenceModel struct {
	Username  string    `gorm:"type:varchar(100);primaryKey"`
	IsOnline  bool      `gorm:"not null;default:false"`
	LastSeen  time.Time `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (UserPresenceModel) TableName() string {
	return "user_presences"
}

func (m *UserPresenceModel) ToDomain() domain.UserPresence {
	return domain.UserPresence{
		Username: m.Username,
		IsOnline: m.IsOnline,
		LastSeen: m.LastSeen,
	}
}
