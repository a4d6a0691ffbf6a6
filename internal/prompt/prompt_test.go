package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"bookforge-gateway/internal/models"
)

func TestBuild_UsesTemplatePerTask(t *testing.T) {
	assert.Contains(t, Build(models.TaskOutline, nil), "JSON array only")
	assert.Contains(t, Build(models.TaskChapter, nil), "one chapter of a book")
	assert.Contains(t, Build(models.TaskContent, nil), "writing assistant")
}

func TestBuild_RendersContext(t *testing.T) {
	gc := &models.GenerationContext{
		Title:           "Go in Practice",
		Description:     "A field guide",
		WordCountTarget: 1500,
		PriorContent:    "Chapter one ended here.",
	}

	got := Build(models.TaskChapter, gc)
	assert.Contains(t, got, "Book title: Go in Practice")
	assert.Contains(t, got, "Book description: A field guide")
	assert.Contains(t, got, "about 1500 words")
	assert.Contains(t, got, "Chapter one ended here.")

	outline := Build(models.TaskOutline, gc)
	assert.NotContains(t, outline, "words.", "outline instructions never carry a word target")
}

func TestBuild_OverrideReplacesTemplate(t *testing.T) {
	gc := &models.GenerationContext{
		Title:                "ignored",
		SystemPromptOverride: "  Only answer in haiku.  ",
	}
	assert.Equal(t, "Only answer in haiku.", Build(models.TaskChapter, gc))
}

func TestTail_KeepsValidUTF8(t *testing.T) {
	s := strings.Repeat("é", priorContentLimit)
	got := tail(s, priorContentLimit+1)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasPrefix(got, "..."))
	assert.Equal(t, "short", tail("short", 10))
}
