// Package anthropic implements the streaming Messages API adapter.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"bookforge-gateway/internal/config"
	"bookforge-gateway/internal/errs"
	"bookforge-gateway/internal/models"
	"bookforge-gateway/internal/provider"
)

const (
	contentTypeJSON = "application/json"
	eventStream     = "text/event-stream"
	userAgent       = "bookforge-gateway/0.1"
	apiVersion      = "2023-06-01"

	// hardMaxOutputTokens is the largest max_tokens the Messages API accepts
	// for the default model family.
	hardMaxOutputTokens = 8192
)

// Provider opens Messages API streams.
type Provider struct {
	baseURL  string
	headers  map[string]string
	client   *http.Client
	limits   provider.Limits
	messages string
}

// New constructs an Anthropic streaming adapter.
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
		messages: baseURL + "/v1/messages",
	}, nil
}

func (p *Provider) Name() models.Provider {
	return models.ProviderAnthropic
}

func (p *Provider) Limits() provider.Limits {
	return p.limits
}

// OpenStream starts a streaming generation and hands back the raw SSE body.
// The caller owns the body and must close it.
func (p *Provider) OpenStream(ctx context.Context, call provider.Call) (io.ReadCloser, error) {
	payload := buildMessagePayload(call, p.limits)

	httpReq, err := p.newRequest(ctx, call.APIKey, payload)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindStreamDisconnected, "anthropic stream request failed")
	}

	if httpResp.StatusCode >= 400 {
		defer httpResp.Body.Close()
		return nil, provider.ClassifyHTTPError("anthropic", httpResp.StatusCode, provider.ReadErrorBody(httpResp))
	}

	return httpResp.Body, nil
}

func (p *Provider) newRequest(ctx context.Context, apiKey string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.messages, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", eventStream)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type messagePayload struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func buildMessagePayload(call provider.Call, limits provider.Limits) messagePayload {
	payload := messagePayload{
		Model: call.Model,
		Messages: []message{{
			Role:    "user",
			Content: []contentBlock{{Type: "text", Text: call.Prompt}},
		}},
		System:    call.System,
		MaxTokens: limits.Clamp(call.MaxTokens),
		Stream:    true,
	}
	if call.Temperature > 0 {
		temperature := call.Temperature
		payload.Temperature = &temperature
	}
	return payload
}
