package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prism-gw/prism/internal/canonical"
)

// =============================================================================
// NATIVE USAGE COUNTERS
// =============================================================================

func TestOllamaResponse_NativeUsageFields(t *testing.T) {
	body := []byte(`{
		"model": "llama3.1",
		"choices": [{"message": {"role": "assistant", "content": "hi"}}],
		"prompt_eval_count": 26,
		"eval_count": 12
	}`)
	a := NewOllamaResponseAdapter(body)

	assert.Equal(t, canonical.Usage{InputTokens: 26, OutputTokens: 12}, a.Usage())
}

func TestOllamaResponse_FallsBackToOpenAIUsage(t *testing.T) {
	body := []byte(`{
		"choices": [{"message": {"content": "hi"}}],
		"usage": {"prompt_tokens": 7, "completion_tokens": 2}
	}`)
	a := NewOllamaResponseAdapter(body)

	assert.Equal(t, canonical.Usage{InputTokens: 7, OutputTokens: 2}, a.Usage())
}

func TestOllamaStream_NativeUsageTerminates(t *testing.T) {
	s := NewOllamaStreamAdapter()

	s.ProcessChunk([]byte(`{"choices":[{"index":0,"delta":{"content":"hi"}}]}`))
	result := s.ProcessChunk([]byte(`{"choices":[],"prompt_eval_count":26,"eval_count":12}`))

	assert.True(t, result.IsFinal)

	usage := NewOllamaResponseAdapter(s.ToProviderResponse()).Usage()
	assert.Equal(t, canonical.Usage{InputTokens: 26, OutputTokens: 12}, usage)
}

func TestOllama_ProviderTags(t *testing.T) {
	assert.Equal(t, ProviderOllama, NewOllamaRequestAdapter([]byte(`{}`)).Provider())
	assert.Equal(t, ProviderOllama, NewOllamaResponseAdapter([]byte(`{}`)).Provider())
	assert.Equal(t, ProviderOllama, NewOllamaStreamAdapter().Provider())
}
