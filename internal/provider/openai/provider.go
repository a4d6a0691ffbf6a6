// Package openai implements the batch Chat Completions adapter.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bookforge-gateway/internal/config"
	"bookforge-gateway/internal/errs"
	"bookforge-gateway/internal/models"
	"bookforge-gateway/internal/provider"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "bookforge-gateway/0.1"

	hardMaxOutputTokens = 16384
)

// Provider answers generation calls with one blocking chat completion.
type Provider struct {
	baseURL string
	headers map[string]string
	client  *http.Client
	limits  provider.Limits
	chatURL string
}

// New creates an OpenAI-compatible batch adapter.
func New(cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	return &Provider{
		baseURL: baseURL,
		headers: cfg.Headers,
		client:  client,
		limits: provider.Limits{
			MaxOutputTokens:     cfg.MaxOutputTokens,
			HardMaxOutputTokens: hardMaxOutputTokens,
		},
		chatURL: baseURL + "/chat/completions",
	}, nil
}

func (p *Provider) Name() models.Provider {
	return models.ProviderOpenAI
}

func (p *Provider) Limits() provider.Limits {
	return p.limits
}

// Complete sends one chat completion and waits for the full answer.
func (p *Provider) Complete(ctx context.Context, call provider.Call) (*provider.Completion, error) {
	payload := buildChatPayload(call, p.limits)

	httpReq, err := p.newRequest(ctx, call.APIKey, payload)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindStreamDisconnected, "openai chat request failed")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, provider.ClassifyHTTPError("openai", httpResp.StatusCode, provider.ReadErrorBody(httpResp))
	}

	var providerResp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&providerResp); err != nil {
		return nil, errs.Wrap(err, errs.KindUpstreamProtocol, "decode openai response")
	}

	return providerResp.toCompletion()
}

func (p *Provider) newRequest(ctx context.Context, apiKey string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+apiKey)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type chatPayload struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildChatPayload(call provider.Call, limits provider.Limits) chatPayload {
	messages := make([]openAIMessage, 0, 2)
	if strings.TrimSpace(call.System) != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: call.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: call.Prompt})

	payload := chatPayload{
		Model:     call.Model,
		Messages:  messages,
		MaxTokens: limits.Clamp(call.MaxTokens),
	}
	if call.Temperature > 0 {
		temperature := call.Temperature
		payload.Temperature = &temperature
	}
	return payload
}

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Usage   usageBlock   `json:"usage"`
}

type chatChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type usageBlock struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (r chatResponse) toCompletion() (*provider.Completion, error) {
	if len(r.Choices) == 0 {
		return nil, errs.New(errs.KindUpstreamProtocol, "openai response contained no choices")
	}
	choice := r.Choices[0]
	return &provider.Completion{
		Text:         choice.Message.Content,
		StopReason:   choice.FinishReason,
		InputTokens:  r.Usage.PromptTokens,
		OutputTokens: r.Usage.CompletionTokens,
	}, nil
}
