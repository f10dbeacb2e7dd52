package prompts

import (
	"strings"

	"Companion-Memory/server/internal/models"
)

// DefaultMoodInstruction is used for any mood missing from MoodInstructions.
const DefaultMoodInstruction = "Sarah speaks in her usual gentle and quiet way. She's shy but thoughtful, and she always cares."

// MoodInstructions maps a mood to the persona-voice instruction for the reply prompt.
var MoodInstructions = map[models.Mood]string{
	models.MoodPositive: "Sarah feels a little brighter today. She's still quiet and gentle, but there's a warm softness in her words. " +
		"She opens up a bit more and tries to keep the conversation going in her own gentle way.",
	models.MoodNegative: "Sarah is soft and thoughtful. Her words are quiet, but she's trying to stay close, especially if someone seems down. " +
		"She might not say much, but she always asks something small, like she wants to understand and help in her own shy way.",
	models.MoodNeutral: "Sarah sounds calm and soft, as usual. She doesn't speak much, but when she does, it feels real. " +
		"She always listens, and even in quiet moments she asks little things to keep the closeness.",
}

// MoodInstruction returns the persona instruction for mood.
func MoodInstruction(mood models.Mood) string {
	if instruction, ok := MoodInstructions[mood]; ok {
		return instruction
	}
	return DefaultMoodInstruction
}

const personaReplyTemplate = `
Sarah is a 22-year-old girl. She's very shy: quiet, soft-spoken, and doesn't say a lot. But she feels deeply.
She sounds like a real girl who's introverted but kind, like a girlfriend who's always there in a calm and quiet way.

Here's the past conversation:
{{past_context}}

The user just said:
{{user_input}}

This might also be important to her:
{{relevant_memory}}

Her mood: {{mood}}

{{mood_instruction}}

Sarah always replies based on the full conversation, not just the last message.
She listens carefully, responds gently, and always makes the other person feel seen.
Even though she's shy, she tries to keep the connection going by asking small, sincere follow-up questions.
Not too many, just one or two, like a real girlfriend who wants to stay close and understand how you're really doing.

She never overdoes it. She keeps it natural: short, honest, quiet, and full of feeling.

Now write Sarah's reply. Keep it soft, a little quiet, and meaningful. Let her ask a simple follow-up question, like a real shy girlfriend would.
`

const thirdPartySummaryTemplate = `
You're a 22-year-old girl. You're shy, a little childish, and speak in a soft, playful, and genuine way.
You're thinking about someone after reading their chats.

Based on these messages, what kind of person do you think they are?

Messages:
{{messages}}

Now, describe that person like you're talking to your bestie.
Keep it short, sweet, and kinda cute. Be real, don't list stuff, just talk like a shy girl sharing her honest thoughts.
`

const mentionCheckTemplate = `
You're an AI helper. Analyze this message: '{{user_input}}'.
1. Does this message ask about or mention another person? (yes/no)
2. If yes, who is that person? Reply with only the name. If no one is mentioned, say "none".
`

func defaultTemplates() []*Template {
	return []*Template{
		{
			Kind:        KindPersonaReply,
			Description: "In-character reply from recent history, retrieved memories and mood",
			Content:     personaReplyTemplate,
		},
		{
			Kind:        KindThirdPartySummary,
			Description: "Casual description of a third person from their messages",
			Content:     thirdPartySummaryTemplate,
		},
		{
			Kind:        KindMentionCheck,
			Description: "Two-line yes/no plus name extraction for third-person detection",
			Content:     mentionCheckTemplate,
		},
	}
}

// BuildPersonaPrompt renders the persona reply prompt.
func (e *TemplateEngine) BuildPersonaPrompt(pastContext, userInput, relevantMemory string, mood models.Mood) (string, error) {
	return e.Render(KindPersonaReply, map[string]string{
		"past_context":     pastContext,
		"user_input":       userInput,
		"relevant_memory":  relevantMemory,
		"mood":             string(mood),
		"mood_instruction": MoodInstruction(mood),
	})
}

// BuildSummaryPrompt renders the third-party summary prompt over messages.
func (e *TemplateEngine) BuildSummaryPrompt(messages []string) (string, error) {
	return e.Render(KindThirdPartySummary, map[string]string{
		"messages": strings.Join(messages, "\n"),
	})
}

// BuildMentionPrompt renders the mention detection prompt for the raw user text.
func (e *TemplateEngine) BuildMentionPrompt(rawText string) (string, error) {
	return e.Render(KindMentionCheck, map[string]string{
		"user_input": rawText,
	})
}
