package interfaces

import "context"

// Generator is an opaque text-completion service.
type Generator interface {
	// Generate returns the completion for prompt. Implementations return an
	// error wrapping engine.ErrNoText when the model produced no usable text.
	Generate(ctx context.Context, prompt string) (string, error)
}
