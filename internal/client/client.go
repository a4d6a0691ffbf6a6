package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"bookforge-gateway/internal/errs"
	"bookforge-gateway/internal/models"
	"bookforge-gateway/internal/translator"
)

const generatePath = "/api/generate"

// Client talks to a running gateway.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger used for skipped frames and interruptions.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client for the gateway at baseURL. No overall timeout is set;
// callers bound generations through the context.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway url must not be empty")
	}

	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate runs one generation. onChunk, when non-nil, observes progress.
func (c *Client) Generate(ctx context.Context, req models.GenerationRequest, onChunk func(string)) (*Result, error) {
	body, err := json.Marshal(translator.FromModel(req))
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream, application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindStreamDisconnected, "gateway request failed")
	}

	acc := &Accumulator{
		OnChunk: onChunk,
		Logger:  c.logger.With("request_id", requestID, "provider", req.Provider),
	}
	return acc.Consume(resp)
}
