package models

import (
	"time"
)

// CachedMemory is what the side-cache keeps per record id.
type CachedMemory struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
	StoredAt time.Time              `json:"stored_at"`
}

// RetrievedMemory is a nearest-neighbour match resolved back to its text.
// Score is only meaningful relative to other scores from the same query.
type RetrievedMemory struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
	Score    float64                `json:"score"`
}
