// Package gemini implements the batch generateContent adapter. The API key
// travels in the query string rather than a header.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"bookforge-gateway/internal/config"
	"bookforge-gateway/internal/errs"
	"bookforge-gateway/internal/models"
	"bookforge-gateway/internal/provider"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "bookforge-gateway/0.1"

	hardMaxOutputTokens = 8192
)

// Provider answers generation calls with one generateContent response.
type Provider struct {
	baseURL string
	headers map[string]string
	client  *http.Client
	limits  provider.Limits
}

// New creates a Gemini batch adapter.
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
	}, nil
}

func (p *Provider) Name() models.Provider {
	return models.ProviderGemini
}

func (p *Provider) Limits() provider.Limits {
	return p.limits
}

// Complete sends one generateContent request and waits for the answer.
func (p *Provider) Complete(ctx context.Context, call provider.Call) (*provider.Completion, error) {
	httpReq, err := p.newRequest(ctx, call.Model, call.APIKey, buildGeneratePayload(call, p.limits))
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errs.Wrap(redactKey(err), errs.KindStreamDisconnected, "gemini generate request failed")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, provider.ClassifyHTTPError("gemini", httpResp.StatusCode, provider.ReadErrorBody(httpResp))
	}

	var providerResp generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&providerResp); err != nil {
		return nil, errs.Wrap(err, errs.KindUpstreamProtocol, "decode gemini response")
	}

	return providerResp.toCompletion()
}

func (p *Provider) endpoint(model, apiKey string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent?%s",
		p.baseURL, url.PathEscape(model), url.Values{"key": {apiKey}}.Encode())
}

// redactKey drops the query string, and with it the API key, from the URL a
// transport error reports.
func redactKey(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		if i := strings.IndexByte(ue.URL, '?'); i >= 0 {
			ue.URL = ue.URL[:i]
		}
	}
	return err
}

func (p *Provider) newRequest(ctx context.Context, model, apiKey string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(model, apiKey), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type generatePayload struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

func buildGeneratePayload(call provider.Call, limits provider.Limits) generatePayload {
	payload := generatePayload{
		Contents: []content{{Role: "user", Parts: []part{{Text: call.Prompt}}}},
		GenerationConfig: generationConfig{
			MaxOutputTokens: limits.Clamp(call.MaxTokens),
		},
	}
	if strings.TrimSpace(call.System) != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: call.System}}}
	}
	if call.Temperature > 0 {
		temperature := call.Temperature
		payload.GenerationConfig.Temperature = &temperature
	}
	return payload
}

type generateResponse struct {
	Candidates    []candidate   `json:"candidates"`
	UsageMetadata usageMetadata `json:"usageMetadata"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

func (r generateResponse) toCompletion() (*provider.Completion, error) {
	if len(r.Candidates) == 0 {
		return nil, errs.New(errs.KindUpstreamProtocol, "gemini response contained no candidates")
	}

	first := r.Candidates[0]
	var text strings.Builder
	for _, p := range first.Content.Parts {
		text.WriteString(p.Text)
	}

	return &provider.Completion{
		Text:         text.String(),
		StopReason:   first.FinishReason,
		InputTokens:  r.UsageMetadata.PromptTokenCount,
		OutputTokens: r.UsageMetadata.CandidatesTokenCount,
	}, nil
}
