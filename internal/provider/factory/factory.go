package factory

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"bookforge-gateway/internal/config"
	"bookforge-gateway/internal/provider"
	anthropicProvider "bookforge-gateway/internal/provider/anthropic"
	geminiProvider "bookforge-gateway/internal/provider/gemini"
	openaiProvider "bookforge-gateway/internal/provider/openai"
)

const (
	defaultBatchTimeout    = 5 * time.Minute
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// NewRegistry constructs every configured adapter and registers it.
func NewRegistry(cfg config.Config) (*provider.Registry, error) {
	registry := provider.NewRegistry()
	if err := RegisterConfiguredProviders(cfg, registry); err != nil {
		return nil, err
	}
	return registry, nil
}

// RegisterConfiguredProviders constructs providers from configuration and stores them in the registry.
func RegisterConfiguredProviders(cfg config.Config, registry *provider.Registry) error {
	if registry == nil {
		return errors.New("registry must not be nil")
	}

	// Streams stay open for the whole generation, so only the dial and header
	// phases are bounded; the request context ends the body read.
	anthropicClient := newHTTPClient(cfg.Providers.Anthropic.Timeout)
	anthropic, err := anthropicProvider.New(cfg.Providers.Anthropic, anthropicClient)
	if err != nil {
		return fmt.Errorf("initialise anthropic provider: %w", err)
	}
	if err := registry.Register(anthropic); err != nil {
		return fmt.Errorf("register anthropic provider: %w", err)
	}

	openAIClient := newHTTPClient(timeoutOrDefault(cfg.Providers.OpenAI.Timeout))
	openAI, err := openaiProvider.New(cfg.Providers.OpenAI, openAIClient)
	if err != nil {
		return fmt.Errorf("initialise openai provider: %w", err)
	}
	if err := registry.Register(openAI); err != nil {
		return fmt.Errorf("register openai provider: %w", err)
	}

	geminiClient := newHTTPClient(timeoutOrDefault(cfg.Providers.Gemini.Timeout))
	gemini, err := geminiProvider.New(cfg.Providers.Gemini, geminiClient)
	if err != nil {
		return fmt.Errorf("initialise gemini provider: %w", err)
	}
	if err := registry.Register(gemini); err != nil {
		return fmt.Errorf("register gemini provider: %w", err)
	}

	return nil
}

func timeoutOrDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return defaultBatchTimeout
	}
	return timeout
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
