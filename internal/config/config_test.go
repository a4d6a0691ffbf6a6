package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, defaultWriteTimeout, cfg.Server.WriteTimeout)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, defaultAnthropicURL, cfg.Providers.Anthropic.BaseURL)
	assert.Equal(t, defaultGeminiURL, cfg.Providers.Gemini.BaseURL)
}

func TestParse_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("BF_TEST_OPENAI_KEY", "sk-from-env")

	raw := `
providers:
  openai:
    api_key: ${BF_TEST_OPENAI_KEY}
    base_url: ${BF_TEST_UNSET_URL:https://proxy.example.com/v1}
    timeout: 90s
`
	cfg, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env", cfg.Providers.OpenAI.APIKey)
	assert.Equal(t, "https://proxy.example.com/v1", cfg.Providers.OpenAI.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.Providers.OpenAI.Timeout)
}

func TestValidate(t *testing.T) {
	t.Run("rejects bad port", func(t *testing.T) {
		_, err := Parse([]byte("server:\n  port: 70000\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.port")
	})

	t.Run("rejects non-canonical header", func(t *testing.T) {
		raw := "providers:\n  anthropic:\n    headers:\n      \"X Bad\": v\n"
		_, err := Parse([]byte(raw))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "canonical")
	})

	t.Run("rejects non-http base url", func(t *testing.T) {
		raw := "providers:\n  gemini:\n    base_url: ftp://example.com\n"
		_, err := Parse([]byte(raw))
		require.Error(t, err)
	})

	t.Run("rejects sample rate above one", func(t *testing.T) {
		_, err := Parse([]byte("tracing:\n  sample_rate: 2\n"))
		require.Error(t, err)
	})
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8181\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestCredentials_Lookup(t *testing.T) {
	cfg := Default()
	cfg.Providers.OpenAI.APIKey = "configured-key"

	creds := NewCredentials(cfg)
	creds.getenv = func(key string) string {
		if key == "GEMINI_API_KEY" {
			return "env-key"
		}
		return ""
	}

	key, ok := creds.Lookup("openai")
	assert.True(t, ok)
	assert.Equal(t, "configured-key", key)

	key, ok = creds.Lookup("Gemini")
	assert.True(t, ok)
	assert.Equal(t, "env-key", key)

	_, ok = creds.Lookup("anthropic")
	assert.False(t, ok)

	var nilCreds *Credentials
	_, ok = nilCreds.Lookup("openai")
	assert.False(t, ok)
}
