package rag

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedder runs a local ONNX sentence-transformer (all-MiniLM-L6-v2 by default, 384 dims).
type FastEmbedder struct {
	m     *fastembed.FlagEmbedding
	mu    sync.Mutex
	model string
	dim   int
	bs    int
}

// NewFastEmbedder loads model into cacheDir, downloading it on first use.
func NewFastEmbedder(model, cacheDir string, dim int) (*FastEmbedder, error) {
	if model == "" {
		model = string(fastembed.AllMiniLML6V2)
	}
	m, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:    fastembed.EmbeddingModel(model),
		CacheDir: cacheDir,
	})
	if err != nil {
		return nil, fmt.Errorf("fastembed init %s: %w", model, err)
	}

	bs := 64
	if bs > 4*runtime.GOMAXPROCS(0) {
		bs = 4 * runtime.GOMAXPROCS(0)
	}
	return &FastEmbedder{m: m, model: model, dim: dim, bs: bs}, nil
}

func (e *FastEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The ONNX session is not safe for concurrent runs.
	e.mu.Lock()
	defer e.mu.Unlock()

	out, err := e.m.Embed(texts, e.bs)
	if err != nil {
		return nil, fmt.Errorf("fastembed embed: %w", err)
	}
	return out, nil
}

func (e *FastEmbedder) Dim() int { return e.dim }

func (e *FastEmbedder) Name() string { return "fastembed:" + e.model }

func (e *FastEmbedder) Close() error {
	if e.m != nil {
		e.m.Destroy()
	}
	return nil
}
