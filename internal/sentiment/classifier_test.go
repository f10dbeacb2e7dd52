package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"Companion-Memory/server/internal/models"
)

func TestMoodFromCompound(t *testing.T) {
	tests := []struct {
		score float64
		want  models.Mood
	}{
		{0.9, models.MoodPositive},
		{0.0001, models.MoodPositive},
		{0, models.MoodNeutral},
		{-0.0001, models.MoodNegative},
		{-1, models.MoodNegative},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MoodFromCompound(tt.score), "score %v", tt.score)
	}
}

func TestClassify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name string
		text string
		want models.Mood
	}{
		{"positive", "u1: I love this, it is wonderful and great!", models.MoodPositive},
		{"negative", "u1: This is terrible and I hate it.", models.MoodNegative},
		{"empty", "", models.MoodNeutral},
		{"no lexicon words", "u1: the table", models.MoodNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.text))
		})
	}
}

func TestClassifyAlwaysReturnsKnownMood(t *testing.T) {
	c := NewClassifier()
	inputs := []string{"", "   ", "!!!", "????", "12345", "ok", "meh :(", ":)"}
	for _, in := range inputs {
		switch c.Classify(in) {
		case models.MoodPositive, models.MoodNegative, models.MoodNeutral:
		default:
			t.Fatalf("unexpected mood for %q", in)
		}
	}
}
