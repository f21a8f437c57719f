package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/weiawesome/chat-relay/internal/config"
	"github.com/weiawesome/chat-relay/internal/domain"
)

var cassandraSchema = []string{
	`CREATE TABLE IF NOT EXISTS messages_by_room (
		room text,
		sent_at timestamp,
		message_id text,
		username text,
		body text,
		PRIMARY KEY ((room), sent_at, message_id)
	) WITH CLUSTERING ORDER BY (sent_at DESC, message_id DESC)`,
	`CREATE TABLE IF NOT EXISTS user_presence (
		username text PRIMARY KEY,
		is_online boolean,
		last_seen timestamp
	)`,
}

// CassandraGateway stores messages partitioned by room. INSERT on the
// user_presence primary key is an upsert.
type CassandraGateway struct {
	session *gocql.Session
}

func NewCassandraGateway(cfg config.CassandraConfig) (*CassandraGateway, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = parseConsistency(cfg.Consistency)
	cluster.ConnectTimeout = cfg.ConnectTimeout
	cluster.Timeout = cfg.Timeout
	if cfg.NumConns > 0 {
		cluster.NumConns = cfg.NumConns
	}

	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}

	for _, stmt := range cassandraSchema {
		if err := session.Query(stmt).Exec(); err != nil {
			session.Close()
			return nil, fmt.Errorf("failed to apply cassandra schema: %w", err)
		}
	}

	return &CassandraGateway{session: session}, nil
}

func (r *CassandraGateway) InsertMessage(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages_by_room (room, sent_at, message_id, username, body)
		VALUES (?, ?, ?, ?, ?)`

	err := r.session.Query(query,
		msg.Room,
		msg.Timestamp,
		msg.ID,
		msg.Username,
		msg.Body,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (r *CassandraGateway) UpsertUserPresence(ctx context.Context, username string, isOnline bool, lastSeen time.Time) error {
	query := `INSERT INTO user_presence (username, is_online, last_seen) VALUES (?, ?, ?)`
	if err := r.session.Query(query, username, isOnline, lastSeen).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to upsert presence: %w", err)
	}
	return nil
}

func (r *CassandraGateway) FindRecentMessages(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}

	query := `SELECT message_id, username, body, sent_at
			  FROM messages_by_room
			  WHERE room = ?
			  LIMIT ?`
	iter := r.session.Query(query, room, limit).WithContext(ctx).Iter()

	messages := make([]domain.Message, 0, limit)
	var msg domain.Message
	for iter.Scan(&msg.ID, &msg.Username, &msg.Body, &msg.Timestamp) {
		msg.Room = room
		msg.Timestamp = msg.Timestamp.UTC()
		messages = append(messages, msg)
		msg = domain.Message{}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

func (r *CassandraGateway) FindAllUsers(ctx context.Context) ([]domain.UserPresence, error) {
	iter := r.session.Query(`SELECT username, is_online, last_seen FROM user_presence`).WithContext(ctx).Iter()

	var users []domain.UserPresence
	var u domain.UserPresence
	for iter.Scan(&u.Username, &u.IsOnline, &u.LastSeen) {
		u.LastSeen = u.LastSeen.UTC()
		users = append(users, u)
		u = domain.UserPresence{}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

func (r *CassandraGateway) Close() error {
	r.session.Close()
	return nil
}

// parseConsistency converts a string consistency level to gocql.Consistency.
func parseConsistency(s string) gocql.Consistency {
	switch strings.ToUpper(s) {
	case "ANY":
		return gocql.Any
	case "ONE":
		return gocql.One
	case "TWO":
		return gocql.Two
	case "THREE":
		return gocql.Three
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "EACH_QUORUM":
		return gocql.EachQuorum
	case "LOCAL_ONE":
		return gocql.LocalOne
	default:
		return gocql.LocalQuorum
	}
}
