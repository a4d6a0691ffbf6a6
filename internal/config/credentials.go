package config

import (
	"os"
	"strings"
)

// Credentials resolves fallback API keys for requests that carry none.
// Lookup order: the configured api_key, then <PROVIDER>_API_KEY.
type Credentials struct {
	configured map[string]string
	getenv     func(string) string
}

// NewCredentials builds a lookup over the provider section of cfg.
func NewCredentials(cfg Config) *Credentials {
	configured := make(map[string]string)
	for name, provider := range cfg.Providers.byName() {
		if key := strings.TrimSpace(provider.APIKey); key != "" {
			configured[name] = key
		}
	}
	return &Credentials{configured: configured, getenv: os.Getenv}
}

// Lookup returns the fallback credential for provider.
func (c *Credentials) Lookup(provider string) (string, bool) {
	if c == nil {
		return "", false
	}
	name := strings.ToLower(strings.TrimSpace(provider))
	if key, ok := c.configured[name]; ok {
		return key, true
	}
	if name == "" {
		return "", false
	}
	key := strings.TrimSpace(c.getenv(strings.ToUpper(name) + "_API_KEY"))
	return key, key != ""
}
