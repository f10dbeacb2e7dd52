package interfaces

import (
	"context"

	"Companion-Memory/server/internal/models"
)

// SideCache resolves memory record ids back to their full text and metadata.
// Implementations must be safe for concurrent use.
type SideCache interface {
	PutMemory(ctx context.Context, id string, entry *models.CachedMemory) error
	GetMemory(ctx context.Context, id string) (*models.CachedMemory, bool, error)
}
