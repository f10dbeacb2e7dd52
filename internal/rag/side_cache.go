package rag

import (
	"context"
	"sync"

	"Companion-Memory/server/internal/models"
)

// MemorySideCache is a process-local id -> text/metadata map safe for concurrent use.
type MemorySideCache struct {
	mu      sync.RWMutex
	entries map[string]*models.CachedMemory
}

func NewMemorySideCache() *MemorySideCache {
	return &MemorySideCache{entries: make(map[string]*models.CachedMemory)}
}

func (c *MemorySideCache) PutMemory(ctx context.Context, id string, entry *models.CachedMemory) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = entry
	return nil
}

func (c *MemorySideCache) GetMemory(ctx context.Context, id string) (*models.CachedMemory, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[id]
	return entry, ok, nil
}

// Len returns the number of cached entries
func (c *MemorySideCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
