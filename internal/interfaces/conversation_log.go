package interfaces

import (
	"context"

	"Companion-Memory/server/internal/models"
)

// ConversationLog is the durable, append-only record of chat turns.
type ConversationLog interface {
	// Append stores msg. The log assigns ID and Timestamp when they are empty.
	Append(ctx context.Context, msg *models.Message) error

	// Recent returns up to limit messages for userID, most recent first.
	Recent(ctx context.Context, userID string, limit int) ([]*models.Message, error)

	// Close releases the underlying connection
	Close() error
}
