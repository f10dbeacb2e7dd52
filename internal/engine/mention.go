package engine

import (
	"context"
	"log"
	"strings"

	"go.uber.org/atomic"

	"Companion-Memory/server/internal/interfaces"
	"Companion-Memory/server/internal/prompts"
)

const nameMarker = "2."

// PromptedMentionDetector asks the generator whether a message is about another person.
type PromptedMentionDetector struct {
	generator interfaces.Generator
	prompts   *prompts.TemplateEngine
	failures  atomic.Int64
}

// NewPromptedMentionDetector creates a detector backed by generator
func NewPromptedMentionDetector(generator interfaces.Generator, templates *prompts.TemplateEngine) *PromptedMentionDetector {
	return &PromptedMentionDetector{generator: generator, prompts: templates}
}

// Detect never fails: generator errors and unparseable answers mean no mention.
func (d *PromptedMentionDetector) Detect(ctx context.Context, rawText string) interfaces.Mention {
	prompt, err := d.prompts.BuildMentionPrompt(rawText)
	if err != nil {
		d.failures.Inc()
		log.Printf("[Mention] failed to build prompt: %v", err)
		return noMention()
	}

	answer, err := d.generator.Generate(ctx, prompt)
	if err != nil {
		d.failures.Inc()
		log.Printf("[Mention] detection failed, continuing without mention: %v", err)
		return noMention()
	}

	return ParseMentionResponse(answer)
}

// Failures returns how many detections fell back to no mention because of an error.
func (d *PromptedMentionDetector) Failures() int64 {
	return d.failures.Load()
}

// ParseMentionResponse reads a two-line "1. yes/no" / "2. name" answer.
// The answer is lower-cased; a second line without the "2." marker yields no mention.
func ParseMentionResponse(answer string) interfaces.Mention {
	lines := strings.Split(strings.ToLower(strings.TrimSpace(answer)), "\n")
	if len(lines) < 2 || !strings.Contains(lines[1], nameMarker) {
		return noMention()
	}

	name := strings.TrimSpace(strings.Split(lines[1], nameMarker)[1])
	if name == "" {
		name = interfaces.NoMention
	}

	return interfaces.Mention{
		AsksAboutOther: strings.Contains(lines[0], "yes"),
		Identity:       name,
	}
}

func noMention() interfaces.Mention {
	return interfaces.Mention{AsksAboutOther: false, Identity: interfaces.NoMention}
}
