package storage

import (
	"context"
	"fmt"

	"Companion-Memory/server/internal/config"
	"Companion-Memory/server/internal/interfaces"
	"Companion-Memory/server/internal/models"
)

// NewConversationLog opens the backend named by the credentials blob
func NewConversationLog(ctx context.Context, creds *config.DocStoreCredentials, cfg config.DatabaseConfig) (interfaces.ConversationLog, error) {
	switch creds.Provider {
	case config.ProviderFirestore:
		return NewFirestoreLog(ctx, creds.ProjectID, creds.Raw)
	case config.ProviderMySQL, config.ProviderSQLite:
		return NewGormLog(creds.Provider, creds.DSN, cfg)
	case config.ProviderMongoDB:
		return NewMongoLog(ctx, creds.URI, creds.Database)
	default:
		return nil, fmt.Errorf("unsupported docstore provider %q", creds.Provider)
	}
}

// normalizeMoods maps stored moods written by other clients onto the known set.
func normalizeMoods(messages []*models.Message) []*models.Message {
	for _, msg := range messages {
		msg.Mood = models.ParseMood(string(msg.Mood))
	}
	return messages
}
