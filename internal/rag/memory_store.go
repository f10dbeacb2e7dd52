package rag

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"Companion-Memory/server/internal/interfaces"
	"Companion-Memory/server/internal/models"
)

// Entry is a caller-supplied text with arbitrary metadata for batch storage.
type Entry struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

// MemoryStore manages long-term chat memories with vector search
type MemoryStore struct {
	index    MemoryIndex
	embedder Embedder
	cache    interfaces.SideCache
}

// NewMemoryStore creates a new memory store
func NewMemoryStore(index MemoryIndex, embedder Embedder, cache interfaces.SideCache) *MemoryStore {
	return &MemoryStore{
		index:    index,
		embedder: embedder,
		cache:    cache,
	}
}

// Fingerprint is the deterministic record id of text.
func Fingerprint(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Store embeds text and upserts it under its fingerprint. Storing the same
// text again overwrites the same record.
func (s *MemoryStore) Store(ctx context.Context, identity, text string, mood models.Mood) (string, error) {
	id := Fingerprint(text)

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("failed to generate embedding: %w", err)
	}

	point := &Point{
		ID:     id,
		Vector: vector,
		Payload: map[string]interface{}{
			payloadIdentity: identity,
			payloadText:     text,
			payloadMood:     string(mood),
		},
	}
	if err := s.index.Upsert(ctx, []*Point{point}); err != nil {
		return "", fmt.Errorf("failed to store memory: %w", err)
	}

	err = s.cache.PutMemory(ctx, id, &models.CachedMemory{
		Text: text,
		Metadata: map[string]interface{}{
			payloadIdentity: identity,
			payloadMood:     string(mood),
		},
		StoredAt: time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to cache memory %s: %w", id, err)
	}

	return id, nil
}

// StoreBatch embeds all entries in one call and upserts them together.
// Ids are returned in entry order.
func (s *MemoryStore) StoreBatch(ctx context.Context, entries []Entry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Text
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	ids := make([]string, len(entries))
	points := make([]*Point, len(entries))
	for i, e := range entries {
		ids[i] = Fingerprint(e.Text)

		payload := make(map[string]interface{}, len(e.Metadata)+1)
		for k, v := range e.Metadata {
			payload[k] = v
		}
		payload[payloadText] = e.Text

		points[i] = &Point{ID: ids[i], Vector: vectors[i], Payload: payload}
	}

	if err := s.index.Upsert(ctx, points); err != nil {
		return nil, fmt.Errorf("failed to store memories: %w", err)
	}

	now := time.Now()
	for i, e := range entries {
		metadata := e.Metadata
		if metadata == nil {
			metadata = map[string]interface{}{}
		}
		if err := s.cache.PutMemory(ctx, ids[i], &models.CachedMemory{Text: e.Text, Metadata: metadata, StoredAt: now}); err != nil {
			return nil, fmt.Errorf("failed to cache memory %s: %w", ids[i], err)
		}
	}

	return ids, nil
}

// Retrieve returns up to k memories of identity nearest to query, best first,
// never including a memory whose text is exactly query.
func (s *MemoryStore) Retrieve(ctx context.Context, identity, query string, k int) ([]*models.RetrievedMemory, error) {
	results, err := s.search(ctx, query, k, IdentityFilter(identity))
	if err != nil {
		return nil, err
	}

	memories := make([]*models.RetrievedMemory, 0, len(results))
	for _, result := range results {
		memory := s.resultToMemory(ctx, result)
		if memory.Text == query {
			continue
		}
		memories = append(memories, memory)
	}

	return memories, nil
}

// Recall returns the non-empty texts of up to k memories of identity nearest to query.
func (s *MemoryStore) Recall(ctx context.Context, identity, query string, k int) ([]string, error) {
	results, err := s.search(ctx, query, k, IdentityFilter(identity))
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(results))
	for _, result := range results {
		if text, ok := result.Payload[payloadText].(string); ok && text != "" {
			texts = append(texts, text)
		}
	}
	return texts, nil
}

// Search runs an unfiltered query and resolves every match through the side-cache.
// Matches the cache does not know come back with empty text and metadata.
func (s *MemoryStore) Search(ctx context.Context, query string, k int) ([]*models.RetrievedMemory, error) {
	results, err := s.search(ctx, query, k, nil)
	if err != nil {
		return nil, err
	}

	memories := make([]*models.RetrievedMemory, 0, len(results))
	for _, result := range results {
		memory := &models.RetrievedMemory{
			ID:       result.ID,
			Metadata: map[string]interface{}{},
			Score:    result.Score,
		}
		cached, ok, err := s.cache.GetMemory(ctx, result.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve memory %s: %w", result.ID, err)
		}
		if ok {
			memory.Text = cached.Text
			if cached.Metadata != nil {
				memory.Metadata = cached.Metadata
			}
		}
		memories = append(memories, memory)
	}
	return memories, nil
}

// Info returns index statistics
func (s *MemoryStore) Info(ctx context.Context) (*CollectionInfo, error) {
	return s.index.Info(ctx)
}

// EmbeddingStats reports the embedder's cache and backend, or nil when it keeps none.
func (s *MemoryStore) EmbeddingStats() *EmbeddingStats {
	if svc, ok := s.embedder.(interface{ GetStats() *EmbeddingStats }); ok {
		return svc.GetStats()
	}
	return nil
}

func (s *MemoryStore) search(ctx context.Context, query string, k int, filter *Filter) ([]*SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	results, err := s.index.Search(ctx, vector, &SearchOptions{Limit: k, Filter: filter})
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}
	return results, nil
}

// resultToMemory prefers the payload text and falls back to the side-cache.
func (s *MemoryStore) resultToMemory(ctx context.Context, result *SearchResult) *models.RetrievedMemory {
	metadata := make(map[string]interface{}, len(result.Payload))
	for k, v := range result.Payload {
		if k != payloadText {
			metadata[k] = v
		}
	}

	text, _ := result.Payload[payloadText].(string)
	if text == "" {
		cached, ok, err := s.cache.GetMemory(ctx, result.ID)
		if err != nil {
			log.Printf("[MemoryStore] side-cache lookup for %s failed: %v", result.ID, err)
		} else if ok {
			text = cached.Text
		}
	}

	return &models.RetrievedMemory{
		ID:       result.ID,
		Text:     text,
		Metadata: metadata,
		Score:    result.Score,
	}
}
