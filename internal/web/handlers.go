package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"Companion-Memory/server/internal/engine"
	"Companion-Memory/server/internal/models"
	"Companion-Memory/server/internal/rag"
)

const (
	defaultTopK = 5
	maxTopK     = 100
)

// ChatService answers chat turns
type ChatService interface {
	Chat(ctx context.Context, identity, input string) (*engine.ChatResult, error)
	Stats() engine.PipelineStats
}

// MemoryService seeds and searches long-term memory
type MemoryService interface {
	StoreBatch(ctx context.Context, entries []rag.Entry) ([]string, error)
	Search(ctx context.Context, query string, k int) ([]*models.RetrievedMemory, error)
	Info(ctx context.Context) (*rag.CollectionInfo, error)
	EmbeddingStats() *rag.EmbeddingStats
}

// ChatRequest is the body of POST /chat and of every websocket frame
type ChatRequest struct {
	UserInput string `json:"user_input"`
	UserID    string `json:"user_id"`
}

type AddMessagesRequest struct {
	Messages []rag.Entry `json:"messages"`
}

type GetMessagesRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k,omitempty"`
}

type RetrievedMessage struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
	Score    float64                `json:"score"`
}

type GetMessagesResponse struct {
	Query   string             `json:"query"`
	Results []RetrievedMessage `json:"results"`
}

type Handlers struct {
	chat   ChatService
	memory MemoryService
	hub    *ChatHub
}

func NewHandlers(chat ChatService, memory MemoryService, hub *ChatHub) *Handlers {
	return &Handlers{chat: chat, memory: memory, hub: hub}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Web] failed to encode response: %v", err)
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := h.chat.Chat(r.Context(), req.UserID, req.UserInput)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrEmptyInput) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) AddMessages(w http.ResponseWriter, r *http.Request) {
	var req AddMessagesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	if _, err := h.memory.StoreBatch(r.Context(), req.Messages); err != nil {
		log.Printf("[Web] add-messages failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Added %d messages", len(req.Messages)),
	})
}

func (h *Handlers) GetMessages(w http.ResponseWriter, r *http.Request) {
	var req GetMessagesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "query is required"})
		return
	}

	topK := defaultTopK
	if req.TopK != nil && *req.TopK > 0 {
		topK = *req.TopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	memories, err := h.memory.Search(r.Context(), req.Query, topK)
	if err != nil {
		log.Printf("[Web] get-messages failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}

	resp := GetMessagesResponse{Query: req.Query, Results: make([]RetrievedMessage, 0, len(memories))}
	for _, m := range memories {
		metadata := m.Metadata
		if metadata == nil {
			metadata = map[string]interface{}{}
		}
		resp.Results = append(resp.Results, RetrievedMessage{Text: m.Text, Metadata: metadata, Score: m.Score})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"pipeline": h.chat.Stats(),
	}
	if h.hub != nil {
		stats["websocket_clients"] = h.hub.GetClientCount()
	}
	if info, err := h.memory.Info(r.Context()); err != nil {
		log.Printf("[Web] index info unavailable: %v", err)
	} else {
		stats["index"] = info
	}
	if embeddings := h.memory.EmbeddingStats(); embeddings != nil {
		stats["embeddings"] = embeddings
	}
	writeJSON(w, http.StatusOK, stats)
}
