package models

import (
	"strings"
	"time"
)

// Mood is the sentiment bucket of a message.
type Mood string

const (
	MoodPositive Mood = "positive"
	MoodNegative Mood = "negative"
	MoodNeutral  Mood = "neutral"
)

// ParseMood maps s onto a known mood; anything unrecognised is neutral.
func ParseMood(s string) Mood {
	switch Mood(strings.ToLower(strings.TrimSpace(s))) {
	case MoodPositive:
		return MoodPositive
	case MoodNegative:
		return MoodNegative
	default:
		return MoodNeutral
	}
}

func (m Mood) String() string {
	return string(m)
}

// Message is one logged chat turn. Text already carries the identity prefix.
type Message struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id" firestore:"id" bson:"_id"`
	UserID    string    `gorm:"index:idx_user_ts,priority:1;size:128" json:"user_id" firestore:"user_id" bson:"user_id"`
	Text      string    `gorm:"column:message;type:text" json:"message" firestore:"message" bson:"message"`
	Mood      Mood      `gorm:"size:16" json:"mood" firestore:"mood" bson:"mood"`
	Timestamp time.Time `gorm:"index:idx_user_ts,priority:2" json:"timestamp" firestore:"timestamp" bson:"timestamp"`
}

func (Message) TableName() string {
	return "messages"
}
