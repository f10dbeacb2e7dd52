package interfaces

import (
	"context"

	"Companion-Memory/server/internal/models"
)

// MoodClassifier maps a message to a mood.
type MoodClassifier interface {
	Classify(text string) models.Mood
}

// NoMention is the identity token used when no third person was found.
const NoMention = "none"

// Mention is the outcome of third-person detection.
type Mention struct {
	AsksAboutOther bool   `json:"asks_about_other"`
	Identity       string `json:"mentioned_identity"`
}

// Found reports whether the turn should take the third-party summary branch.
func (m Mention) Found() bool {
	return m.AsksAboutOther && m.Identity != "" && m.Identity != NoMention
}

// MentionDetector decides whether raw user text asks about another tracked person.
// Implementations fail closed: any internal failure yields a Mention that is not Found.
type MentionDetector interface {
	Detect(ctx context.Context, rawText string) Mention
}
