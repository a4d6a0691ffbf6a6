package translator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookforge-gateway/internal/models"
)

func TestGenerateRequest_ToModel(t *testing.T) {
	body := `{
		"provider": " Anthropic ",
		"apiKey": " sk-1 ",
		"model": "claude-test",
		"prompt": "Outline a book on sourdough",
		"type": "toc",
		"context": {"title": "Crumb", "wordCount": 1200, "previousContent": "..."}
	}`

	var req GenerateRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	got := req.ToModel()
	assert.Equal(t, models.ProviderAnthropic, got.Provider)
	assert.Equal(t, "sk-1", got.APIKey)
	assert.Equal(t, models.TaskOutline, got.Task)
	require.NotNil(t, got.Context)
	assert.Equal(t, "Crumb", got.Context.Title)
	assert.Equal(t, 1200, got.Context.WordCountTarget)
	assert.Equal(t, "...", got.Context.PriorContent)
}

func TestGenerateRequest_PromptParts(t *testing.T) {
	var req GenerateRequest
	require.NoError(t, json.Unmarshal([]byte(`{"prompt":["one","two"]}`), &req))
	assert.Equal(t, "one\n\ntwo", req.Prompt)
	assert.Equal(t, models.TaskContent, req.ToModel().Task)

	err := json.Unmarshal([]byte(`{"prompt":{"text":"x"}}`), &req)
	assert.Error(t, err)
}

func TestFromModel_RoundTripsThroughWire(t *testing.T) {
	in := models.GenerationRequest{
		Provider: models.ProviderGemini,
		Model:    "gemini-test",
		Task:     models.TaskChapter,
		Prompt:   "Write chapter two",
	}

	raw, err := json.Marshal(FromModel(in))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "apiKey", "empty keys stay off the wire")

	var back GenerateRequest
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, in, back.ToModel())
}
