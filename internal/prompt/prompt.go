// Package prompt builds the system instruction sent with every generation.
package prompt

import (
	"fmt"
	"strings"

	"bookforge-gateway/internal/models"
)

// priorContentLimit bounds how much earlier text is echoed back to the model.
const priorContentLimit = 6000

const outlineTemplate = `You are an experienced book architect. Design the table of contents for the book described below.
Respond with a JSON array only: no prose, no explanations, no markdown fences.
Every element must have the shape {"id": string, "title": string, "slug": string, "children": array}.
Use "ch-1", "ch-2", ... for top-level ids and "ch-1-1", "ch-1-2", ... for nested sections.
Slugs are lowercase, hyphen separated and unique. Keep titles short.`

const chapterTemplate = `You are a skilled author writing one chapter of a book.
Write the full chapter in markdown, starting with a level-two heading for the chapter title.
Stay consistent with the book details and with any previous content you are given.
Do not summarize the rest of the book and do not add commentary about the writing process.`

const contentTemplate = `You are a helpful writing assistant for a book author.
Produce exactly the text requested, in markdown, without preamble or closing remarks.`

// Template returns the default instruction for a task kind.
func Template(task models.TaskKind) string {
	switch task {
	case models.TaskOutline:
		return outlineTemplate
	case models.TaskChapter:
		return chapterTemplate
	default:
		return contentTemplate
	}
}

// Build returns the system instruction for task. A non-empty
// SystemPromptOverride replaces the whole instruction.
func Build(task models.TaskKind, gc *models.GenerationContext) string {
	if gc != nil && strings.TrimSpace(gc.SystemPromptOverride) != "" {
		return strings.TrimSpace(gc.SystemPromptOverride)
	}

	var sb strings.Builder
	sb.WriteString(Template(task))

	details := renderContext(task, gc)
	if details != "" {
		sb.WriteString("\n\n")
		sb.WriteString(details)
	}
	return sb.String()
}

func renderContext(task models.TaskKind, gc *models.GenerationContext) string {
	if gc == nil {
		return ""
	}

	var sb strings.Builder
	if title := strings.TrimSpace(gc.Title); title != "" {
		sb.WriteString(fmt.Sprintf("Book title: %s\n", title))
	}
	if desc := strings.TrimSpace(gc.Description); desc != "" {
		sb.WriteString(fmt.Sprintf("Book description: %s\n", desc))
	}
	if gc.WordCountTarget > 0 && task != models.TaskOutline {
		sb.WriteString(fmt.Sprintf("Target length: about %d words.\n", gc.WordCountTarget))
	}
	if prior := strings.TrimSpace(gc.PriorContent); prior != "" {
		sb.WriteString("Previous content (for continuity, do not repeat it):\n")
		sb.WriteString(tail(prior, priorContentLimit))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// tail keeps the last limit bytes of s without splitting a UTF-8 sequence.
func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := len(s) - limit
	for cut < len(s) && s[cut]&0xC0 == 0x80 {
		cut++
	}
	return "..." + s[cut:]
}
