package adapters

// ProviderVLLM is the adapter name for vLLM's OpenAI-compatible server.
//
// vLLM implements the Chat Completions wire faithfully (including
// stream_options.include_usage and reasoning_content for reasoning models),
// so all three adapters delegate to the OpenAI implementations under the
// vllm provider tag. The differences live in the Factory: base URL, API key
// handling and error envelope.
const ProviderVLLM = "vllm"

// NewVLLMRequestAdapter wraps a raw vLLM request.
func NewVLLMRequestAdapter(body []byte) *OpenAIRequestAdapter {
	return newOpenAICompatibleRequestAdapter(ProviderVLLM, body)
}

// NewVLLMResponseAdapter wraps a raw vLLM response.
func NewVLLMResponseAdapter(body []byte) *OpenAIResponseAdapter {
	return newOpenAICompatibleResponseAdapter(ProviderVLLM, body)
}

// NewVLLMStreamAdapter creates a stream accumulator for vLLM chunks.
func NewVLLMStreamAdapter() *OpenAIStreamAdapter {
	return newOpenAICompatibleStreamAdapter(ProviderVLLM)
}
