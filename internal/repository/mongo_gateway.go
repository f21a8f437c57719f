package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/weiawesome/chat-relay/internal/config"
	"github.com/weiawesome/chat-relay/internal/domain"
)

const (
	mongoMessagesCollection = "messages"
	mongoUsersCollection    = "users"
)

type mongoMessage struct {
	ID        string    `bson:"_id"`
	Username  string    `bson:"username"`
	Message   string    `bson:"message"`
	Room      string    `bson:"room"`
	Timestamp time.Time `bson:"timestamp"`
}

type mongoUser struct {
	Username string    `bson:"username"`
	IsOnline bool      `bson:"isOnline"`
	LastSeen time.Time `bson:"lastSeen"`
}

// MongoGateway stores messages and users in two MongoDB collections.
type MongoGateway struct {
	client   *mongo.Client
	messages *mongo.Collection
	users    *mongo.Collection
}

// NewMongoGateway connects, pings and ensures indexes. The database name is
// taken from cfg.Database, or from the URI path when that is empty.
func NewMongoGateway(ctx context.Context, cfg config.MongoConfig) (*MongoGateway, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	dbName := cfg.Database
	if dbName == "" {
		cs, err := connstring.ParseAndValidate(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("invalid mongo uri: %w", err)
		}
		dbName = cs.Database
	}
	if dbName == "" {
		dbName = "chatapp"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(dbName)
	g := &MongoGateway{
		client:   client,
		messages: db.Collection(mongoMessagesCollection),
		users:    db.Collection(mongoUsersCollection),
	}
	if err := g.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return g, nil
}

func (g *MongoGateway) ensureIndexes(ctx context.Context) error {
	_, err := g.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	_, err = g.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "room", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create messages index: %w", err)
	}
	return nil
}

func (g *MongoGateway) InsertMessage(ctx context.Context, msg *domain.Message) error {
	doc := mongoMessage{
		ID:        msg.ID,
		Username:  msg.Username,
		Message:   msg.Body,
		Room:      msg.Room,
		Timestamp: msg.Timestamp,
	}
	if _, err := g.messages.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (g *MongoGateway) UpsertUserPresence(ctx context.Context, username string, isOnline bool, lastSeen time.Time) error {
	filter := bson.M{"username": username}
	update := bson.M{"$set": bson.M{"isOnline": isOnline, "lastSeen": lastSeen}}
	_, err := g.users.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert presence: %w", err)
	}
	return nil
}

func (g *MongoGateway) FindRecentMessages(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := g.messages.Find(ctx, bson.M{"room": room}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoMessage
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	messages := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		messages = append(messages, domain.Message{
			ID:        d.ID,
			Username:  d.Username,
			Body:      d.Message,
			Room:      d.Room,
			Timestamp: d.Timestamp.UTC(),
		})
	}
	return messages, nil
}

func (g *MongoGateway) FindAllUsers(ctx context.Context) ([]domain.UserPresence, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastSeen", Value: -1}})
	cursor, err := g.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoUser
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	users := make([]domain.UserPresence, 0, len(docs))
	for _, d := range docs {
		users = append(users, domain.UserPresence{
			Username: d.Username,
			IsOnline: d.IsOnline,
			LastSeen: d.LastSeen.UTC(),
		})
	}
	return users, nil
}

func (g *MongoGateway) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.client.Disconnect(ctx)
}
