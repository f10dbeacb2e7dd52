package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateErrorMapsSafetyBlock(t *testing.T) {
	blocked := &genai.BlockedError{
		PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety},
	}

	err := generateError(blocked)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoText)

	err = generateError(fmt.Errorf("stream: %w", blocked))
	assert.ErrorIs(t, err, ErrNoText)
}

func TestGenerateErrorKeepsOtherFailures(t *testing.T) {
	err := generateError(context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrNoText))
}

func TestResponseText(t *testing.T) {
	_, err := responseText(nil)
	assert.ErrorIs(t, err, ErrNoText)

	_, err = responseText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Text("  ")}}}},
	})
	assert.ErrorIs(t, err, ErrNoText)

	text, err := responseText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Text("hello "), genai.Text("there")}}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
}
