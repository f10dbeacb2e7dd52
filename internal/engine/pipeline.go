package engine

import (
	"context"
	"errors"
	"log"
	"strings"

	"go.uber.org/atomic"

	"Companion-Memory/server/internal/interfaces"
	"Companion-Memory/server/internal/models"
	"Companion-Memory/server/internal/prompts"
)

const (
	fallbackReply   = "Hmm... I'm unsure what to say."
	fallbackSummary = "Hmm... I'm not sure."
	unknownPerson   = "I don't know that person."
)

// MemoryStore is the long-term memory the pipeline writes to and recalls from.
type MemoryStore interface {
	Store(ctx context.Context, identity, text string, mood models.Mood) (string, error)
	Retrieve(ctx context.Context, identity, query string, k int) ([]*models.RetrievedMemory, error)
	Recall(ctx context.Context, identity, query string, k int) ([]string, error)
}

// Options tunes the windows the pipeline reads.
type Options struct {
	HistoryWindow        int
	MentionHistoryWindow int
	RetrieveLimit        int
	MentionRetrieveLimit int
	IdentityDelimiter    string
	// Debug logs every composed prompt.
	Debug bool
}

// DefaultOptions returns the stock windows.
func DefaultOptions() Options {
	return Options{
		HistoryWindow:        5,
		MentionHistoryWindow: 10,
		RetrieveLimit:        5,
		MentionRetrieveLimit: 10,
		IdentityDelimiter:    ": ",
	}
}

// ChatResult is the reply to one chat turn
type ChatResult struct {
	Response string      `json:"response"`
	Mood     models.Mood `json:"mood"`
}

// PipelineStats counts pipeline outcomes since start
type PipelineStats struct {
	Turns               int64 `json:"turns"`
	Summaries           int64 `json:"summaries"`
	UnknownPerson       int64 `json:"unknown_person"`
	GenerationFallbacks int64 `json:"generation_fallbacks"`
	Failures            int64 `json:"failures"`
	MentionFailures     int64 `json:"mention_failures"`
}

// ConversationPipeline answers chat turns, either in persona or by summarising a third person
type ConversationPipeline struct {
	classifier interfaces.MoodClassifier
	detector   interfaces.MentionDetector
	history    interfaces.ConversationLog
	memory     MemoryStore
	generator  interfaces.Generator
	prompts    *prompts.TemplateEngine
	opts       Options

	turns               atomic.Int64
	summaries           atomic.Int64
	unknownPerson       atomic.Int64
	generationFallbacks atomic.Int64
	failures            atomic.Int64
}

// NewConversationPipeline creates a pipeline. Zero option fields take their defaults.
func NewConversationPipeline(
	classifier interfaces.MoodClassifier,
	detector interfaces.MentionDetector,
	history interfaces.ConversationLog,
	memory MemoryStore,
	generator interfaces.Generator,
	templates *prompts.TemplateEngine,
	opts Options,
) *ConversationPipeline {
	defaults := DefaultOptions()
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = defaults.HistoryWindow
	}
	if opts.MentionHistoryWindow <= 0 {
		opts.MentionHistoryWindow = defaults.MentionHistoryWindow
	}
	if opts.RetrieveLimit <= 0 {
		opts.RetrieveLimit = defaults.RetrieveLimit
	}
	if opts.MentionRetrieveLimit <= 0 {
		opts.MentionRetrieveLimit = defaults.MentionRetrieveLimit
	}
	if opts.IdentityDelimiter == "" {
		opts.IdentityDelimiter = defaults.IdentityDelimiter
	}

	return &ConversationPipeline{
		classifier: classifier,
		detector:   detector,
		history:    history,
		memory:     memory,
		generator:  generator,
		prompts:    templates,
		opts:       opts,
	}
}

// Chat runs one turn for identity. The mention check sees the raw input; everything
// written or embedded uses the identity-prefixed text.
func (p *ConversationPipeline) Chat(ctx context.Context, identity, input string) (*ChatResult, error) {
	if strings.TrimSpace(identity) == "" || strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}
	p.turns.Inc()

	var (
		result *ChatResult
		err    error
	)
	if mention := p.detector.Detect(ctx, input); mention.Found() {
		result, err = p.summarize(ctx, mention.Identity, input)
	} else {
		result, err = p.reply(ctx, identity, input)
	}

	if err != nil {
		p.failures.Inc()
		log.Printf("[Pipeline] turn for %s failed: %v", identity, err)
		return nil, err
	}
	return result, nil
}

// reply is the normal branch: store, retrieve, generate, then append to the log.
func (p *ConversationPipeline) reply(ctx context.Context, identity, input string) (*ChatResult, error) {
	text := identity + p.opts.IdentityDelimiter + input
	mood := p.classifier.Classify(text)

	recent, err := p.history.Recent(ctx, identity, p.opts.HistoryWindow)
	if err != nil {
		return nil, stageError(StageHistory, err)
	}
	pastContext := joinChronological(recent)

	if _, err := p.memory.Store(ctx, identity, text, mood); err != nil {
		return nil, stageError(StageMemoryStore, err)
	}

	memories, err := p.memory.Retrieve(ctx, identity, text, p.opts.RetrieveLimit)
	if err != nil {
		return nil, stageError(StageMemoryRetrieve, err)
	}
	relevant := make([]string, 0, len(memories))
	for _, m := range memories {
		if m.Text != "" {
			relevant = append(relevant, m.Text)
		}
	}

	prompt, err := p.prompts.BuildPersonaPrompt(pastContext, text, strings.Join(relevant, "\n"), mood)
	if err != nil {
		return nil, stageError(StagePrompt, err)
	}
	if p.opts.Debug {
		log.Printf("[Pipeline] persona prompt for %s:\n%s", identity, prompt)
	}

	response, err := p.generate(ctx, prompt, fallbackReply)
	if err != nil {
		return nil, stageError(StageGenerate, err)
	}

	if err := p.history.Append(ctx, &models.Message{UserID: identity, Text: text, Mood: mood}); err != nil {
		return nil, stageError(StageLogAppend, err)
	}

	return &ChatResult{Response: response, Mood: mood}, nil
}

// summarize is the read-only third-party branch.
func (p *ConversationPipeline) summarize(ctx context.Context, person, input string) (*ChatResult, error) {
	p.summaries.Inc()

	recent, err := p.history.Recent(ctx, person, p.opts.MentionHistoryWindow)
	if err != nil {
		return nil, stageError(StageSummaryHistory, err)
	}
	pool := make([]string, 0, len(recent)+p.opts.MentionRetrieveLimit)
	for i := len(recent) - 1; i >= 0; i-- {
		pool = append(pool, recent[i].Text)
	}

	recalled, err := p.memory.Recall(ctx, person, input, p.opts.MentionRetrieveLimit)
	if err != nil {
		return nil, stageError(StageSummaryMemory, err)
	}
	pool = append(pool, recalled...)

	if len(pool) == 0 {
		p.unknownPerson.Inc()
		return &ChatResult{Response: unknownPerson, Mood: models.MoodNeutral}, nil
	}

	prompt, err := p.prompts.BuildSummaryPrompt(pool)
	if err != nil {
		return nil, stageError(StagePrompt, err)
	}
	if p.opts.Debug {
		log.Printf("[Pipeline] summary prompt for %s:\n%s", person, prompt)
	}

	response, err := p.generate(ctx, prompt, fallbackSummary)
	if err != nil {
		return nil, stageError(StageGenerate, err)
	}
	return &ChatResult{Response: response, Mood: models.MoodNeutral}, nil
}

// generate substitutes fallback when the model produced no text.
func (p *ConversationPipeline) generate(ctx context.Context, prompt, fallback string) (string, error) {
	text, err := p.generator.Generate(ctx, prompt)
	if errors.Is(err, ErrNoText) {
		p.generationFallbacks.Inc()
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// Stats returns a snapshot of the pipeline counters
func (p *ConversationPipeline) Stats() PipelineStats {
	stats := PipelineStats{
		Turns:               p.turns.Load(),
		Summaries:           p.summaries.Load(),
		UnknownPerson:       p.unknownPerson.Load(),
		GenerationFallbacks: p.generationFallbacks.Load(),
		Failures:            p.failures.Load(),
	}
	if counter, ok := p.detector.(interface{ Failures() int64 }); ok {
		stats.MentionFailures = counter.Failures()
	}
	return stats
}

// joinChronological joins a most-recent-first slice oldest first.
func joinChronological(messages []*models.Message) string {
	texts := make([]string, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		texts = append(texts, messages[i].Text)
	}
	return strings.Join(texts, "\n")
}
