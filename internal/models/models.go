package models

import "strings"

// Provider identifies an upstream generation backend.
type Provider string

const (
	// ProviderAnthropic streams tokens over server-sent events.
	ProviderAnthropic Provider = "anthropic"
	// ProviderOpenAI answers with a single JSON completion (bearer auth).
	ProviderOpenAI Provider = "openai"
	// ProviderGemini answers with a single JSON completion (query-string key).
	ProviderGemini Provider = "gemini"
)

// TaskKind is the caller's declared intent; it selects the instruction
// template and the output token budget.
type TaskKind string

const (
	TaskOutline TaskKind = "toc"
	TaskChapter TaskKind = "chapter"
	TaskContent TaskKind = "content"
)

// ParseTaskKind maps the wire value onto a TaskKind. Unknown values fall back
// to free content generation.
func ParseTaskKind(raw string) TaskKind {
	switch TaskKind(strings.ToLower(strings.TrimSpace(raw))) {
	case TaskOutline:
		return TaskOutline
	case TaskChapter:
		return TaskChapter
	default:
		return TaskContent
	}
}

// ExpectsStructuredOutput reports whether the task returns JSON that must be
// parsed (and possibly repaired) by the consumer.
func (k TaskKind) ExpectsStructuredOutput() bool {
	return k == TaskOutline
}

// GenerationContext carries optional book-level details used to build the
// system instruction.
type GenerationContext struct {
	Title                string `json:"title,omitempty"`
	Description          string `json:"description,omitempty"`
	PriorContent         string `json:"previousContent,omitempty"`
	WordCountTarget      int    `json:"wordCount,omitempty"`
	SystemPromptOverride string `json:"systemPromptOverride,omitempty"`
}

// GenerationRequest is the canonical representation of one generate call.
// It is created per user action and discarded after one gateway call.
type GenerationRequest struct {
	Provider Provider
	APIKey   string
	Model    string
	Task     TaskKind
	Prompt   string
	Context  *GenerationContext
}

// StopReasonStreamEnded is reported when the upstream connection closed before
// a terminal frame arrived.
const StopReasonStreamEnded = "stream_ended"

// Metadata records how a generation ended and what it cost.
type Metadata struct {
	StopReason   string `json:"stopReason"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
	WordCount    int    `json:"wordCount"`
}

// WordCount counts whitespace separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// ChapterNode is one entry of a recovered table of contents.
type ChapterNode struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Slug     string        `json:"slug"`
	Children []ChapterNode `json:"children,omitempty"`
}
