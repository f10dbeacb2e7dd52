package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMood(t *testing.T) {
	tests := map[string]Mood{
		"positive":  MoodPositive,
		" Negative": MoodNegative,
		"neutral":   MoodNeutral,
		"":          MoodNeutral,
		"ecstatic":  MoodNeutral,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseMood(in), in)
	}
}
