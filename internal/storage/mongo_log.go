package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"Companion-Memory/server/internal/models"
)

const mongoCloseTimeout = 5 * time.Second

// MongoLog keeps the conversation log in a MongoDB collection
type MongoLog struct {
	client     *mongo.Client
	collection *mongo.Collection
	clock      *Clock
}

// NewMongoLog connects to uri and ensures the (user_id, timestamp) index exists
func NewMongoLog(ctx context.Context, uri, database string) (*MongoLog, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	collection := client.Database(database).Collection(messagesCollection)
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create message index: %w", err)
	}

	return &MongoLog{client: client, collection: collection, clock: NewClock()}, nil
}

func (l *MongoLog) Append(ctx context.Context, msg *models.Message) error {
	stamp(l.clock, &msg.ID, &msg.Timestamp)
	if _, err := l.collection.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (l *MongoLog) Recent(ctx context.Context, userID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := l.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return normalizeMoods(messages), nil
}

func (l *MongoLog) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return l.client.Disconnect(ctx)
}
