// Package mongodb provides the MongoDB-backed session audit log.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/unifiedui/session-service/internal/core/auditlog"
	"github.com/unifiedui/session-service/internal/domain/models"
)

const (
	// EventsCollection is the name of the session events collection.
	EventsCollection = "session_events"
)

// Config holds MongoDB connection configuration.
type Config struct {
	URI          string
	DatabaseName string

	// Retention is how long events are kept. Zero keeps them forever.
	Retention time.Duration
}

// Logger implements auditlog.Logger for MongoDB.
type Logger struct {
	client    *mongo.Client
	events    *mongo.Collection
	retention time.Duration
	ownClient bool
}

var _ auditlog.Logger = (*Logger)(nil)

// NewLogger connects to MongoDB.
func NewLogger(ctx context.Context, config *Config) (*Logger, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.URI == "" {
		return nil, fmt.Errorf("mongodb URI is required")
	}
	if config.DatabaseName == "" {
		return nil, fmt.Errorf("database name is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Logger{
		client:    client,
		events:    client.Database(config.DatabaseName).Collection(EventsCollection),
		retention: config.Retention,
		ownClient: true,
	}, nil
}

// NewLoggerWithDatabase creates a logger on an existing database handle.
// Close leaves the client connected.
func NewLoggerWithDatabase(db *mongo.Database, retention time.Duration) *Logger {
	return &Logger{
		client:    db.Client(),
		events:    db.Collection(EventsCollection),
		retention: retention,
	}
}

// EnsureIndexes creates the lookup index and, if retention is set, the TTL
// index that expires old events.
func (l *Logger) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "occurredAt", Value: -1}},
			Options: options.Index().SetName("userId_occurredAt"),
		},
	}
	if l.retention > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "occurredAt", Value: 1}},
			Options: options.Index().SetName("occurredAt_ttl").SetExpireAfterSeconds(int32(l.retention.Seconds())),
		})
	}

	if _, err := l.events.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to ensure session event indexes: %w", err)
	}
	return nil
}

// Record inserts an event.
func (l *Logger) Record(ctx context.Context, event *models.SessionEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if _, err := l.events.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to insert session event: %w", err)
	}
	return nil
}

// List returns a user's events, newest first.
func (l *Logger) List(ctx context.Context, userID string, limit int) ([]*models.SessionEvent, error) {
	if limit <= 0 {
		limit = auditlog.DefaultListLimit
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "occurredAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := l.events.Find(ctx, bson.M{"userId": userID}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list session events: %w", err)
	}
	defer cursor.Close(ctx)

	events := make([]*models.SessionEvent, 0)
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode session events: %w", err)
	}
	return events, nil
}

// Ping verifies the connection to MongoDB.
func (l *Logger) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (l *Logger) Close(ctx context.Context) error {
	if !l.ownClient {
		return nil
	}
	if err := l.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}
