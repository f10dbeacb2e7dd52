package rag

import "context"

const (
	// payload keys shared by every index implementation
	payloadText        = "text"
	payloadIdentity    = "user_id"
	payloadMood        = "mood"
	payloadFingerprint = "fingerprint"
)

// Point represents a vector point with payload. ID is the text fingerprint.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// SearchOptions holds search options
type SearchOptions struct {
	Limit  int
	Filter *Filter
}

// Filter is a conjunction of exact-match payload conditions.
type Filter struct {
	Must []Condition
}

// Condition matches a payload key against a string value exactly.
type Condition struct {
	Key   string
	Match string
}

// IdentityFilter restricts a search to records owned by identity.
func IdentityFilter(identity string) *Filter {
	return &Filter{Must: []Condition{{Key: payloadIdentity, Match: identity}}}
}

// SearchResult represents a search result, ordered by descending Score.
type SearchResult struct {
	ID      string
	Score   float64
	Payload map[string]interface{}
}

// CollectionConfig holds collection configuration
type CollectionConfig struct {
	Name       string
	VectorSize int
	Distance   string // "Cosine", "Euclid", "Dot"
}

// CollectionInfo returns information about a collection
type CollectionInfo struct {
	Name       string `json:"name"`
	VectorSize int    `json:"vector_size"`
	PointCount int    `json:"point_count"`
}

// MemoryIndex is the nearest-neighbour store behind the memory store.
type MemoryIndex interface {
	// EnsureCollection creates the collection when it does not exist yet.
	EnsureCollection(ctx context.Context) error

	// Upsert inserts or overwrites points by ID.
	Upsert(ctx context.Context, points []*Point) error

	// Search returns up to opts.Limit nearest points, best first.
	Search(ctx context.Context, vector []float32, opts *SearchOptions) ([]*SearchResult, error)

	// Info returns collection statistics
	Info(ctx context.Context) (*CollectionInfo, error)

	Close() error
}
