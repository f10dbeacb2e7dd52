package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"Companion-Memory/server/internal/models"
)

const messagesCollection = "messages"

// FirestoreLog keeps the conversation log in a Firestore collection.
// Recent needs a composite index on (user_id ASC, timestamp DESC).
type FirestoreLog struct {
	client *firestore.Client
	clock  *Clock
}

// NewFirestoreLog connects with a service-account JSON document
func NewFirestoreLog(ctx context.Context, projectID string, credentialsJSON []byte) (*FirestoreLog, error) {
	client, err := firestore.NewClient(ctx, projectID, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return nil, fmt.Errorf("firestore init: %w", err)
	}
	return &FirestoreLog{client: client, clock: NewClock()}, nil
}

func (l *FirestoreLog) Append(ctx context.Context, msg *models.Message) error {
	stamp(l.clock, &msg.ID, &msg.Timestamp)
	if _, err := l.client.Collection(messagesCollection).Doc(msg.ID).Set(ctx, msg); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (l *FirestoreLog) Recent(ctx context.Context, userID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	iter := l.client.Collection(messagesCollection).
		Where("user_id", "==", userID).
		OrderBy("timestamp", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var messages []*models.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load recent messages: %w", err)
		}
		var msg models.Message
		if err := doc.DataTo(&msg); err != nil {
			return nil, fmt.Errorf("failed to decode message %s: %w", doc.Ref.ID, err)
		}
		messages = append(messages, &msg)
	}
	return normalizeMoods(messages), nil
}

func (l *FirestoreLog) Close() error {
	return l.client.Close()
}
