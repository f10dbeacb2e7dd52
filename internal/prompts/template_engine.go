package prompts

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// Kind identifies one of the registered prompt templates.
type Kind string

const (
	KindPersonaReply      Kind = "persona_reply"
	KindThirdPartySummary Kind = "third_party_summary"
	KindMentionCheck      Kind = "mention_check"
)

// Kinds lists every built-in template kind.
var Kinds = []Kind{KindPersonaReply, KindThirdPartySummary, KindMentionCheck}

var varRegex = regexp.MustCompile(`\{\{(\w+)\}\}`)

// TemplateEngine is a registry of prompt templates keyed by Kind.
type TemplateEngine struct {
	templates map[Kind]*Template
	mu        sync.RWMutex
}

// Template represents a prompt template with {{variable}} placeholders
type Template struct {
	Kind        Kind     `json:"kind"`
	Content     string   `json:"content"`
	Variables   []string `json:"variables"`
	Description string   `json:"description"`
}

// NewTemplateEngine creates an empty template engine
func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{
		templates: make(map[Kind]*Template),
	}
}

// NewDefaultTemplateEngine creates an engine with the built-in templates registered.
func NewDefaultTemplateEngine() *TemplateEngine {
	e := NewTemplateEngine()
	for _, tmpl := range defaultTemplates() {
		e.RegisterTemplate(tmpl)
	}
	return e
}

// RegisterTemplate registers tmpl, replacing any template of the same kind.
func (e *TemplateEngine) RegisterTemplate(tmpl *Template) {
	if len(tmpl.Variables) == 0 {
		tmpl.Variables = ParseTemplateVariables(tmpl.Content)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[tmpl.Kind] = tmpl
}

// GetTemplate retrieves a template by kind
func (e *TemplateEngine) GetTemplate(kind Kind) (*Template, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tmpl, ok := e.templates[kind]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", kind)
	}
	return tmpl, nil
}

// Render substitutes vars into the template of the given kind. Placeholders
// without a value in vars are left untouched; substituted values are never rescanned.
func (e *TemplateEngine) Render(kind Kind, vars map[string]string) (string, error) {
	tmpl, err := e.GetTemplate(kind)
	if err != nil {
		return "", err
	}

	return varRegex.ReplaceAllStringFunc(tmpl.Content, func(match string) string {
		name := varRegex.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	}), nil
}

// ParseTemplateVariables extracts the sorted, de-duplicated variable names of a template
func ParseTemplateVariables(content string) []string {
	matches := varRegex.FindAllStringSubmatch(content, -1)

	unique := make(map[string]bool)
	for _, match := range matches {
		if len(match) > 1 {
			unique[match[1]] = true
		}
	}

	vars := make([]string, 0, len(unique))
	for v := range unique {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}

// ExportTemplate exports a template as JSON
func (e *TemplateEngine) ExportTemplate(kind Kind) (string, error) {
	tmpl, err := e.GetTemplate(kind)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(tmpl, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal template: %w", err)
	}
	return string(data), nil
}

// ImportTemplate registers a template from its JSON form
func (e *TemplateEngine) ImportTemplate(jsonData string) error {
	var tmpl Template
	if err := json.Unmarshal([]byte(jsonData), &tmpl); err != nil {
		return fmt.Errorf("failed to unmarshal template: %w", err)
	}
	if tmpl.Kind == "" {
		return fmt.Errorf("template kind is required")
	}

	tmpl.Variables = ParseTemplateVariables(tmpl.Content)
	e.RegisterTemplate(&tmpl)
	return nil
}
