package adapters

import (
	"github.com/tidwall/gjson"

	"github.com/prism-gw/prism/internal/canonical"
)

// ProviderOllama is the adapter name for Ollama's OpenAI-compatible endpoint.
//
// Requests are plain Chat Completions format. The only divergence is usage
// accounting: Ollama reports prompt_eval_count/eval_count instead of
// prompt_tokens/completion_tokens, and some versions return the OpenAI shape
// as well, so extraction tries native fields first and falls back.
const ProviderOllama = "ollama"

// NewOllamaRequestAdapter wraps a raw Ollama request.
func NewOllamaRequestAdapter(body []byte) *OpenAIRequestAdapter {
	return newOpenAICompatibleRequestAdapter(ProviderOllama, body)
}

// OllamaResponseAdapter wraps a complete Ollama response.
type OllamaResponseAdapter struct {
	*OpenAIResponseAdapter
}

// NewOllamaResponseAdapter wraps a raw Ollama response.
func NewOllamaResponseAdapter(body []byte) *OllamaResponseAdapter {
	return &OllamaResponseAdapter{
		OpenAIResponseAdapter: newOpenAICompatibleResponseAdapter(ProviderOllama, body),
	}
}

// Usage tries Ollama-native counters first, then the OpenAI shape.
func (a *OllamaResponseAdapter) Usage() canonical.Usage {
	if usage, ok := ollamaUsage(a.OriginalResponse()); ok {
		return usage
	}
	return a.OpenAIResponseAdapter.Usage()
}

var _ ResponseAdapter = (*OllamaResponseAdapter)(nil)

// OllamaStreamAdapter accumulates Ollama stream chunks, accepting usage in
// either the native or the OpenAI field naming.
type OllamaStreamAdapter struct {
	*OpenAIStreamAdapter
}

// NewOllamaStreamAdapter creates a stream accumulator for Ollama chunks.
func NewOllamaStreamAdapter() *OllamaStreamAdapter {
	return &OllamaStreamAdapter{
		OpenAIStreamAdapter: newOpenAICompatibleStreamAdapter(ProviderOllama),
	}
}

func (s *OllamaStreamAdapter) ProcessChunk(raw []byte) ChunkResult {
	if usage, ok := ollamaUsage(raw); ok {
		s.usage = &usage
	}
	return s.OpenAIStreamAdapter.ProcessChunk(raw)
}

var _ StreamAdapter = (*OllamaStreamAdapter)(nil)

func ollamaUsage(body []byte) (canonical.Usage, bool) {
	prompt := gjson.GetBytes(body, "prompt_eval_count")
	eval := gjson.GetBytes(body, "eval_count")
	if !prompt.Exists() && !eval.Exists() {
		return canonical.Usage{}, false
	}
	return canonical.Usage{
		InputTokens:  int(prompt.Int()),
		OutputTokens: int(eval.Int()),
	}, true
}
