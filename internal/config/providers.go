package config

import "fmt"

// knownProviders are the provider names the registry ships with.
var knownProviders = map[string]bool{
	"openai":    true,
	"vllm":      true,
	"ollama":    true,
	"minimax":   true,
	"anthropic": true,
	"gemini":    true,
	"bedrock":   true,
}

// ProvidersConfig maps provider name to its settings.
type ProvidersConfig map[string]ProviderConfig

// ProviderConfig contains per-provider connection settings. An absent or
// empty API key means the provider contributes no capability; it is not a
// configuration error.
type ProviderConfig struct {
	APIKey   string `yaml:"api_key"`  // usually ${PROVIDER_API_KEY} in YAML
	Endpoint string `yaml:"endpoint"` // overrides the provider default base URL
	Model    string `yaml:"model"`    // forces this model on every request
}

// Validate rejects unknown provider names so typos fail at startup.
func (p ProvidersConfig) Validate() error {
	for name := range p {
		if !knownProviders[name] {
			return fmt.Errorf("unknown provider '%s' in providers config", name)
		}
	}
	return nil
}

// Get returns the settings for a provider, zero-valued when absent.
func (p ProvidersConfig) Get(name string) ProviderConfig {
	return p[name]
}
