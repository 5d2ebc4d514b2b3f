package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
server:
  port: 8484
  read_timeout: 30s
  write_timeout: 5m
providers:
  openai:
    api_key: ${OPENAI_API_KEY:-}
  anthropic:
    api_key: ${ANTHROPIC_API_KEY:-}
    endpoint: https://api.anthropic.com
compression:
  enabled: true
  price_db_path: ":memory:"
monitoring:
  logging:
    level: info
    format: json
  telemetry:
    enabled: false
`

func TestLoadFromBytes_Valid(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(validYAML))

	require.NoError(t, err)
	assert.Equal(t, 8484, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout.Std())
	assert.Equal(t, 5*time.Minute, cfg.Server.WriteTimeout.Std())
	assert.Equal(t, ":memory:", cfg.Compression.PriceDBPath)
	assert.Equal(t, "https://api.anthropic.com", cfg.Providers.Get("anthropic").Endpoint)
}

func TestLoadFromBytes_MissingPort(t *testing.T) {
	_, err := LoadFromBytes([]byte(`
server:
  read_timeout: 30s
  write_timeout: 5m
`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestLoadFromBytes_UnknownProvider(t *testing.T) {
	_, err := LoadFromBytes([]byte(`
server:
  port: 8484
  read_timeout: 30s
  write_timeout: 5m
providers:
  opnai:
    api_key: x
`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider 'opnai'")
}

func TestLoadFromBytes_CompressionRequiresPriceDB(t *testing.T) {
	_, err := LoadFromBytes([]byte(`
server:
  port: 8484
  read_timeout: 30s
  write_timeout: 5m
compression:
  enabled: true
`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "price_db_path")
}

// =============================================================================
// ENV EXPANSION
// =============================================================================

func TestExpandEnv_WithDefault(t *testing.T) {
	t.Setenv("PRISM_TEST_PORT", "")

	got := expandEnvWithDefaults("port: ${PRISM_TEST_PORT:-8484}")
	assert.Equal(t, "port: 8484", got)
}

func TestExpandEnv_FromEnvironment(t *testing.T) {
	t.Setenv("PRISM_TEST_KEY", "sk-live")

	got := expandEnvWithDefaults("api_key: ${PRISM_TEST_KEY:-fallback}")
	assert.Equal(t, "api_key: sk-live", got)
}

func TestExpandEnv_MissingNoDefault(t *testing.T) {
	got := expandEnvWithDefaults("api_key: ${PRISM_TEST_UNSET_VAR}")
	assert.Equal(t, "api_key: ", got)
}

func TestTelemetryEnvOverride(t *testing.T) {
	t.Setenv("PRISM_TELEMETRY_LOG", "/tmp/usage.jsonl")

	cfg, err := LoadFromBytes([]byte(validYAML))

	require.NoError(t, err)
	assert.True(t, cfg.Monitoring.Telemetry.Enabled)
	assert.Equal(t, "/tmp/usage.jsonl", cfg.Monitoring.Telemetry.LogPath)
}
