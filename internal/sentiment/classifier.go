// Package sentiment buckets chat messages by VADER compound polarity.
package sentiment

import (
	"github.com/jonreiter/govader"

	"Companion-Memory/server/internal/models"
)

// Classifier wraps a VADER analyzer. The analyzer only reads its lexicon after
// construction, so one Classifier is shared by all requests.
type Classifier struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewClassifier creates a classifier with the bundled VADER lexicon
func NewClassifier() *Classifier {
	return &Classifier{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Compound returns the compound polarity score of text in [-1, 1].
func (c *Classifier) Compound(text string) float64 {
	if text == "" {
		return 0
	}
	return c.analyzer.PolarityScores(text).Compound
}

// Classify maps text to positive, negative or neutral.
func (c *Classifier) Classify(text string) models.Mood {
	return MoodFromCompound(c.Compound(text))
}

// MoodFromCompound buckets a compound score; exactly zero is neutral.
func MoodFromCompound(score float64) models.Mood {
	switch {
	case score > 0:
		return models.MoodPositive
	case score < 0:
		return models.MoodNegative
	default:
		return models.MoodNeutral
	}
}
