package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookforge-gateway/internal/config"
	"bookforge-gateway/internal/errs"
	"bookforge-gateway/internal/provider"
)

func TestComplete_Success(t *testing.T) {
	payloads := make(chan chatPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var got chatPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		payloads <- got

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-123",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello, world!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3}
		}`)
	}))
	defer server.Close()

	p, err := New(config.ProviderConfig{BaseURL: server.URL, MaxOutputTokens: 2000}, http.DefaultClient)
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), provider.Call{
		APIKey: "sk-test",
		Model:  "gpt-4o",
		System: "sys",
		Prompt: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, &provider.Completion{
		Text:         "Hello, world!",
		StopReason:   "stop",
		InputTokens:  12,
		OutputTokens: 3,
	}, resp)

	got := <-payloads
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 2000, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestComplete_InvalidKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid key"}}`)
	}))
	defer server.Close()

	p, err := New(config.ProviderConfig{BaseURL: server.URL}, http.DefaultClient)
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), provider.Call{APIKey: "nope", Prompt: "hi"})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Equal(t, errs.KindUpstreamAuth, errs.KindOf(err))
	assert.Equal(t, "invalid key", err.Error())
}

func TestComplete_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer server.Close()

	p, err := New(config.ProviderConfig{BaseURL: server.URL}, http.DefaultClient)
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), provider.Call{APIKey: "k", Prompt: "hi"})
	assert.Equal(t, errs.KindUpstreamProtocol, errs.KindOf(err))
}
