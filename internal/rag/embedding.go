package rag

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheTTL  = 24 * time.Hour
	defaultCacheSize = 10000
	defaultBatchSize = 64
)

// EmbeddingBackend turns a batch of texts into vectors, one per text, in order.
type EmbeddingBackend interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
	Name() string
}

// Embedder is what the memory store needs from an embedding service.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// EmbeddingService handles batching, unit normalisation and caching on top of a backend.
// Cached vectors expire after ttl and the least recently used are evicted past size.
type EmbeddingService struct {
	backend   EmbeddingBackend
	cache     *expirable.LRU[string, []float32]
	batchSize int
}

// NewEmbeddingService creates a new embedding service. ttl <= 0 and size <= 0 use the defaults.
func NewEmbeddingService(backend EmbeddingBackend, ttl time.Duration, size int) *EmbeddingService {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if size <= 0 {
		size = defaultCacheSize
	}
	return &EmbeddingService{
		backend:   backend,
		cache:     expirable.NewLRU[string, []float32](size, nil, ttl),
		batchSize: defaultBatchSize,
	}
}

// Dim returns the vector dimension of the backend
func (s *EmbeddingService) Dim() int {
	return s.backend.Dim()
}

// Embed generates embedding for a single text
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := s.getFromCache(text); ok {
		return vec, nil
	}

	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding generated")
	}

	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	uncachedIndices := make([]int, 0, len(texts))
	uncachedTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := s.getFromCache(text); ok {
			vectors[i] = vec
		} else {
			uncachedIndices = append(uncachedIndices, i)
			uncachedTexts = append(uncachedTexts, text)
		}
	}

	if len(uncachedTexts) == 0 {
		return vectors, nil
	}

	newVectors, err := s.embedBatchUncached(ctx, uncachedTexts)
	if err != nil {
		return nil, err
	}

	for i, idx := range uncachedIndices {
		vectors[idx] = newVectors[i]
		s.cache.Add(uncachedTexts[i], newVectors[i])
	}

	return vectors, nil
}

// embedBatchUncached calls the backend in batches and normalises every vector
func (s *EmbeddingService) embedBatchUncached(ctx context.Context, texts []string) ([][]float32, error) {
	allVectors := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += s.batchSize {
		end := i + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]
		vectors, err := s.backend.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings with %s: %w", s.backend.Name(), err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%s returned %d embeddings for %d texts", s.backend.Name(), len(vectors), len(batch))
		}

		for _, vec := range vectors {
			if dim := s.backend.Dim(); dim > 0 && len(vec) != dim {
				return nil, fmt.Errorf("%s returned %d-dim vector, want %d", s.backend.Name(), len(vec), dim)
			}
			if !IsValidVector(vec) {
				return nil, fmt.Errorf("%s returned an invalid vector", s.backend.Name())
			}
			allVectors = append(allVectors, NormalizeVector(vec))
		}
	}

	return allVectors, nil
}

// getFromCache returns the cached vector of text. Expired entries miss.
func (s *EmbeddingService) getFromCache(text string) ([]float32, bool) {
	return s.cache.Get(text)
}

// GetCacheSize returns the number of cached embeddings
func (s *EmbeddingService) GetCacheSize() int {
	return s.cache.Len()
}

// NormalizeVector returns a unit-length copy of vector. Zero vectors are returned as is.
func NormalizeVector(vector []float32) []float32 {
	if len(vector) == 0 {
		return vector
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)

	if norm == 0 {
		return vector
	}

	normalized := make([]float32, len(vector))
	for i, v := range vector {
		normalized[i] = float32(float64(v) / norm)
	}

	return normalized
}

// CalculateCosineSimilarity calculates cosine similarity between two vectors
func CalculateCosineSimilarity(v1, v2 []float32) (float64, error) {
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("vector dimensions don't match: %d vs %d", len(v1), len(v2))
	}

	if len(v1) == 0 {
		return 0, nil
	}

	var dotProduct, norm1, norm2 float64
	for i := range v1 {
		a, b := float64(v1[i]), float64(v2[i])
		dotProduct += a * b
		norm1 += a * a
		norm2 += b * b
	}

	norm1 = math.Sqrt(norm1)
	norm2 = math.Sqrt(norm2)

	if norm1 == 0 || norm2 == 0 {
		return 0, nil
	}

	return dotProduct / (norm1 * norm2), nil
}

// IsValidVector checks if a vector is valid (no NaN or Inf values)
func IsValidVector(vector []float32) bool {
	for _, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// EmbeddingStats holds statistics about the embedding service
type EmbeddingStats struct {
	CacheSize    int    `json:"cache_size"`
	Backend      string `json:"backend"`
	EmbeddingDim int    `json:"embedding_dim"`
	BatchSize    int    `json:"batch_size"`
}

// GetStats returns statistics about the embedding service
func (s *EmbeddingService) GetStats() *EmbeddingStats {
	return &EmbeddingStats{
		CacheSize:    s.GetCacheSize(),
		Backend:      s.backend.Name(),
		EmbeddingDim: s.backend.Dim(),
		BatchSize:    s.batchSize,
	}
}
