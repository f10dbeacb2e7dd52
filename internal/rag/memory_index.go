package rag

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemoryIndex is a process-local exact cosine index. It backs tests and the
// "memory" qdrant mode for single-process development.
type InMemoryIndex struct {
	mu     sync.RWMutex
	name   string
	dim    int
	order  []string
	points map[string]*Point
}

// NewInMemoryIndex creates an empty index of dim-sized vectors
func NewInMemoryIndex(name string, dim int) *InMemoryIndex {
	return &InMemoryIndex{
		name:   name,
		dim:    dim,
		points: make(map[string]*Point),
	}
}

func (idx *InMemoryIndex) EnsureCollection(ctx context.Context) error {
	return nil
}

func (idx *InMemoryIndex) Upsert(ctx context.Context, points []*Point) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, point := range points {
		if point.ID == "" {
			return fmt.Errorf("point without id")
		}
		if idx.dim > 0 && len(point.Vector) != idx.dim {
			return fmt.Errorf("point %s has %d dims, want %d", point.ID, len(point.Vector), idx.dim)
		}
		if _, ok := idx.points[point.ID]; !ok {
			idx.order = append(idx.order, point.ID)
		}
		payload := make(map[string]interface{}, len(point.Payload))
		for k, v := range point.Payload {
			payload[k] = v
		}
		idx.points[point.ID] = &Point{ID: point.ID, Vector: point.Vector, Payload: payload}
	}
	return nil
}

func (idx *InMemoryIndex) Search(ctx context.Context, vector []float32, opts *SearchOptions) ([]*SearchResult, error) {
	if opts == nil {
		opts = &SearchOptions{Limit: 10}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	results := make([]*SearchResult, 0, len(idx.order))
	for _, id := range idx.order {
		point := idx.points[id]
		if !matches(point.Payload, opts.Filter) {
			continue
		}
		score, err := CalculateCosineSimilarity(vector, point.Vector)
		if err != nil {
			return nil, err
		}
		payload := make(map[string]interface{}, len(point.Payload))
		for k, v := range point.Payload {
			payload[k] = v
		}
		results = append(results, &SearchResult{ID: id, Score: score, Payload: payload})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func matches(payload map[string]interface{}, filter *Filter) bool {
	if filter == nil {
		return true
	}
	for _, c := range filter.Must {
		v, ok := payload[c.Key].(string)
		if !ok || v != c.Match {
			return false
		}
	}
	return true
}

func (idx *InMemoryIndex) Info(ctx context.Context) (*CollectionInfo, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return &CollectionInfo{Name: idx.name, VectorSize: idx.dim, PointCount: len(idx.points)}, nil
}

func (idx *InMemoryIndex) Close() error {
	return nil
}
