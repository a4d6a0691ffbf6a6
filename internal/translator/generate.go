// Package translator maps the gateway's JSON wire shapes onto the canonical
// models and back.
package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"bookforge-gateway/internal/models"
)

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Provider string                    `json:"provider"`
	APIKey   string                    `json:"apiKey,omitempty"`
	Model    string                    `json:"model"`
	Prompt   string                    `json:"prompt"`
	Type     string                    `json:"type,omitempty"`
	Context  *models.GenerationContext `json:"context,omitempty"`
}

// UnmarshalJSON trims identifiers and accepts a prompt given either as a
// string or as a list of text parts.
func (r *GenerateRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Provider string                    `json:"provider"`
		APIKey   string                    `json:"apiKey"`
		Model    string                    `json:"model"`
		Prompt   json.RawMessage           `json:"prompt"`
		Type     string                    `json:"type"`
		Context  *models.GenerationContext `json:"context"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode generate request: %w", err)
	}

	prompt, err := extractPrompt(raw.Prompt)
	if err != nil {
		return err
	}

	r.Provider = strings.ToLower(strings.TrimSpace(raw.Provider))
	r.APIKey = strings.TrimSpace(raw.APIKey)
	r.Model = strings.TrimSpace(raw.Model)
	r.Prompt = prompt
	r.Type = strings.TrimSpace(raw.Type)
	r.Context = raw.Context
	return nil
}

func extractPrompt(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var parts []string
	if err := json.Unmarshal(raw, &parts); err == nil {
		return strings.Join(parts, "\n\n"), nil
	}

	return "", fmt.Errorf("prompt must be a string or an array of strings")
}

// ToModel converts the wire request into a canonical generation request.
func (r GenerateRequest) ToModel() models.GenerationRequest {
	return models.GenerationRequest{
		Provider: models.Provider(r.Provider),
		APIKey:   r.APIKey,
		Model:    r.Model,
		Task:     models.ParseTaskKind(r.Type),
		Prompt:   r.Prompt,
		Context:  r.Context,
	}
}

// FromModel builds the wire request a client sends for req.
func FromModel(req models.GenerationRequest) GenerateRequest {
	return GenerateRequest{
		Provider: string(req.Provider),
		APIKey:   req.APIKey,
		Model:    req.Model,
		Prompt:   req.Prompt,
		Type:     string(req.Task),
		Context:  req.Context,
	}
}

// GenerateResponse is the single JSON body returned for batch providers.
type GenerateResponse struct {
	Content  string           `json:"content"`
	Metadata *models.Metadata `json:"metadata,omitempty"`
}

// FromDone converts a done event into a batch response body.
func FromDone(ev models.Event) GenerateResponse {
	meta := ev.Metadata
	return GenerateResponse{Content: ev.Content, Metadata: &meta}
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// OutlineParseRequest is the body of POST /api/outline/parse.
type OutlineParseRequest struct {
	Text string `json:"text"`
}

// OutlineParseResponse reports the recovered table of contents.
type OutlineParseResponse struct {
	Chapters []models.ChapterNode `json:"chapters"`
	Repaired bool                 `json:"repaired"`
}
