package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"Companion-Memory/server/internal/config"
	"Companion-Memory/server/internal/engine"
	"Companion-Memory/server/internal/interfaces"
	"Companion-Memory/server/internal/prompts"
	"Companion-Memory/server/internal/rag"
	"Companion-Memory/server/internal/sentiment"
	"Companion-Memory/server/internal/storage"
)

const provisionTimeout = 30 * time.Second

// App holds every long-lived component of the server
type App struct {
	Config     *config.Config
	Index      rag.MemoryIndex
	Embeddings *rag.EmbeddingService
	Memory     *rag.MemoryStore
	History    interfaces.ConversationLog
	Generator  interfaces.Generator
	Templates  *prompts.TemplateEngine
	Pipeline   *engine.ConversationPipeline

	closers []func() error
}

// NewMemory builds only the memory stack, enough for ingest and search.
func NewMemory(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.buildMemory(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// New builds the full chat stack. cfg must already be validated.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a, err := NewMemory(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := a.buildChat(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) buildMemory(ctx context.Context) error {
	cfg := a.Config

	index, err := NewIndex(cfg.Database.Qdrant)
	if err != nil {
		return fmt.Errorf("vector index: %w", err)
	}
	a.Index = index
	a.closers = append(a.closers, index.Close)

	provisionCtx, cancel := context.WithTimeout(ctx, provisionTimeout)
	defer cancel()
	if err := index.EnsureCollection(provisionCtx); err != nil {
		return fmt.Errorf("failed to provision collection %s: %w", cfg.Database.Qdrant.Collection, err)
	}

	backend, err := a.newEmbeddingBackend()
	if err != nil {
		return fmt.Errorf("embedding backend: %w", err)
	}
	if backend.Dim() != cfg.Database.Qdrant.VectorSize {
		return fmt.Errorf("embedding backend %s produces %d dims, index expects %d",
			backend.Name(), backend.Dim(), cfg.Database.Qdrant.VectorSize)
	}
	a.Embeddings = rag.NewEmbeddingService(backend, cfg.AI.Embedding.CacheTTL, cfg.AI.Embedding.CacheSize)

	cache, err := a.newSideCache()
	if err != nil {
		return fmt.Errorf("side-cache: %w", err)
	}

	a.Memory = rag.NewMemoryStore(index, a.Embeddings, cache)
	log.Printf("[App] Memory ready (index=%s, embeddings=%s)", cfg.Database.Qdrant.Collection, backend.Name())
	return nil
}

func (a *App) buildChat(ctx context.Context) error {
	cfg := a.Config

	creds, err := cfg.DocStore()
	if err != nil {
		return err
	}
	history, err := storage.NewConversationLog(ctx, creds, cfg.Database)
	if err != nil {
		return fmt.Errorf("conversation log (%s): %w", creds.Provider, err)
	}
	a.History = history
	a.closers = append(a.closers, history.Close)
	log.Printf("[App] Conversation log ready (%s)", creds.Provider)

	generator, err := a.newGenerator(ctx)
	if err != nil {
		return fmt.Errorf("generator: %w", err)
	}
	a.Generator = generator

	a.Templates = prompts.NewDefaultTemplateEngine()
	if cfg.AI.PromptDir != "" {
		n, err := LoadPromptDir(a.Templates, cfg.AI.PromptDir)
		if err != nil {
			return err
		}
		log.Printf("[App] Loaded %d prompt overrides from %s", n, cfg.AI.PromptDir)
	}

	a.Pipeline = engine.NewConversationPipeline(
		sentiment.NewClassifier(),
		engine.NewPromptedMentionDetector(generator, a.Templates),
		history,
		a.Memory,
		generator,
		a.Templates,
		engine.Options{
			HistoryWindow:        cfg.Memory.HistoryWindow,
			MentionHistoryWindow: cfg.Memory.MentionHistoryWindow,
			RetrieveLimit:        cfg.Memory.RetrieveLimit,
			MentionRetrieveLimit: cfg.Memory.MentionRetrieveLimit,
			IdentityDelimiter:    cfg.Memory.IdentityDelimiter,
			Debug:                cfg.Debug(),
		},
	)
	return nil
}

// NewIndex returns the qdrant index, or a process-local one in "memory" mode.
func NewIndex(cfg config.QdrantConfig) (rag.MemoryIndex, error) {
	collection := rag.CollectionConfig{
		Name:       cfg.Collection,
		VectorSize: cfg.VectorSize,
		Distance:   "Cosine",
	}

	switch cfg.Mode {
	case "memory":
		return rag.NewInMemoryIndex(collection.Name, collection.VectorSize), nil
	case "", "qdrant":
		return rag.NewQdrantClient(cfg.Host, cfg.Port, cfg.APIKey, cfg.UseTLS, collection)
	default:
		return nil, fmt.Errorf("unsupported index mode %q", cfg.Mode)
	}
}

func (a *App) newEmbeddingBackend() (rag.EmbeddingBackend, error) {
	cfg := a.Config.AI.Embedding
	dim := a.Config.Database.Qdrant.VectorSize

	switch cfg.Provider {
	case "", "fastembed":
		embedder, err := rag.NewFastEmbedder(cfg.Model, cfg.CacheDir, dim)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, embedder.Close)
		return embedder, nil
	case "openai":
		return rag.NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, dim), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
}

// newSideCache shares the cache through redis when an address is configured.
func (a *App) newSideCache() (interfaces.SideCache, error) {
	redisCfg := a.Config.Database.Redis
	if redisCfg.Addr == "" {
		return rag.NewMemorySideCache(), nil
	}

	store, err := storage.NewRedisStore(redisCfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	log.Printf("[App] Redis side-cache connected (%s)", redisCfg.Addr)
	return store, nil
}

func (a *App) newGenerator(ctx context.Context) (interfaces.Generator, error) {
	cfg := a.Config.AI.Generation

	switch cfg.Provider {
	case "", "gemini":
		client, err := engine.NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Temperature)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return client, nil
	case "openai":
		return engine.NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens, cfg.Temperature), nil
	default:
		return nil, fmt.Errorf("unsupported generation provider %q", cfg.Provider)
	}
}

// LoadPromptDir imports every *.json template in dir and returns how many it loaded.
func LoadPromptDir(templates *prompts.TemplateEngine, dir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return 0, fmt.Errorf("failed to read prompt %s: %w", file, err)
		}
		if err := templates.ImportTemplate(string(data)); err != nil {
			return 0, fmt.Errorf("prompt %s: %w", file, err)
		}
	}
	return len(files), nil
}

// Close releases components in reverse order of construction
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("[App] close error: %v", err)
		}
	}
	a.closers = nil
}
