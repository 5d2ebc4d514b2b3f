// Factory descriptors give the proxy handler a uniform surface per provider:
// adapter constructors, API key extraction, transport construction and
// execution. The handler never touches provider internals.
package adapters

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/prism-gw/prism/internal/upstream"
)

// Interaction type tags, one per wire protocol family.
const (
	InteractionChatCompletions = "chat-completions"
	InteractionMessages        = "messages"
	InteractionGenerateContent = "generate-content"
)

// Factory describes one provider to the generic proxy handler.
type Factory struct {
	Provider        string
	InteractionType string

	NewRequestAdapter  func(body []byte) RequestAdapter
	NewResponseAdapter func(body []byte) ResponseAdapter
	NewStreamAdapter   func() StreamAdapter

	// ExtractAPIKey pulls the provider's key from inbound request headers,
	// empty when absent. Absence is "no capability", not an error.
	ExtractAPIKey func(h http.Header) string

	// BaseURL is the provider's default endpoint root.
	BaseURL func() string

	// NewClient builds the transport. An empty baseURL selects the
	// provider default; opts carries an optional custom HTTP client.
	NewClient func(apiKey, baseURL string, opts upstream.Options) *upstream.Client

	// Execute sends a complete request and returns the native response body.
	Execute func(ctx context.Context, c *upstream.Client, body []byte, model string) ([]byte, error)

	// ExecuteStream sends a streaming request and returns the chunk iterator.
	ExecuteStream func(ctx context.Context, c *upstream.Client, body []byte, model string) (*upstream.ChunkStream, error)

	// ExtractErrorMessage normalizes transport errors for the client.
	ExtractErrorMessage func(err error) string
}

// =============================================================================
// OPENAI-COMPATIBLE FAMILY
// =============================================================================

// bearerKey strips the Bearer prefix from the Authorization header.
func bearerKey(h http.Header) string {
	auth := h.Get("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// newChatCompletionsFactory builds a factory for any provider speaking the
// OpenAI Chat Completions wire.
func newChatCompletionsFactory(
	provider, defaultBaseURL string,
	newRequest func(body []byte) RequestAdapter,
	newResponse func(body []byte) ResponseAdapter,
	newStream func() StreamAdapter,
) *Factory {
	return &Factory{
		Provider:           provider,
		InteractionType:    InteractionChatCompletions,
		NewRequestAdapter:  newRequest,
		NewResponseAdapter: newResponse,
		NewStreamAdapter:   newStream,
		ExtractAPIKey:      bearerKey,
		BaseURL:            func() string { return defaultBaseURL },
		NewClient: func(apiKey, baseURL string, opts upstream.Options) *upstream.Client {
			if baseURL == "" {
				baseURL = defaultBaseURL
			}
			return upstream.NewClient(baseURL, apiKey, upstream.BearerAuth, opts)
		},
		Execute: func(ctx context.Context, c *upstream.Client, body []byte, _ string) ([]byte, error) {
			return c.Do(ctx, "/chat/completions", body)
		},
		ExecuteStream: func(ctx context.Context, c *upstream.Client, body []byte, _ string) (*upstream.ChunkStream, error) {
			body, _ = sjson.SetBytes(body, "stream", true)
			// the terminating usage chunk must be requested explicitly
			body, _ = sjson.SetBytes(body, "stream_options.include_usage", true)
			return c.Stream(ctx, "/chat/completions", body)
		},
		ExtractErrorMessage: ExtractErrorMessage,
	}
}

func newOpenAIFactory() *Factory {
	return newChatCompletionsFactory(ProviderOpenAI, "https://api.openai.com/v1",
		func(body []byte) RequestAdapter { return NewOpenAIRequestAdapter(body) },
		func(body []byte) ResponseAdapter { return NewOpenAIResponseAdapter(body) },
		func() StreamAdapter { return NewOpenAIStreamAdapter() },
	)
}

func newVLLMFactory() *Factory {
	return newChatCompletionsFactory(ProviderVLLM, "http://localhost:8000/v1",
		func(body []byte) RequestAdapter { return NewVLLMRequestAdapter(body) },
		func(body []byte) ResponseAdapter { return NewVLLMResponseAdapter(body) },
		func() StreamAdapter { return NewVLLMStreamAdapter() },
	)
}

func newOllamaFactory() *Factory {
	return newChatCompletionsFactory(ProviderOllama, "http://localhost:11434/v1",
		func(body []byte) RequestAdapter { return NewOllamaRequestAdapter(body) },
		func(body []byte) ResponseAdapter { return NewOllamaResponseAdapter(body) },
		func() StreamAdapter { return NewOllamaStreamAdapter() },
	)
}

func newMiniMaxFactory() *Factory {
	return newChatCompletionsFactory(ProviderMiniMax, "https://api.minimax.io/v1",
		func(body []byte) RequestAdapter { return NewMiniMaxRequestAdapter(body) },
		func(body []byte) ResponseAdapter { return NewMiniMaxResponseAdapter(body) },
		func() StreamAdapter { return NewMiniMaxStreamAdapter() },
	)
}

// =============================================================================
// ANTHROPIC
// =============================================================================

func newAnthropicFactory() *Factory {
	const defaultBaseURL = "https://api.anthropic.com"
	return &Factory{
		Provider:           ProviderAnthropic,
		InteractionType:    InteractionMessages,
		NewRequestAdapter:  func(body []byte) RequestAdapter { return NewAnthropicRequestAdapter(body) },
		NewResponseAdapter: func(body []byte) ResponseAdapter { return NewAnthropicResponseAdapter(body) },
		NewStreamAdapter:   func() StreamAdapter { return NewAnthropicStreamAdapter() },
		ExtractAPIKey:      func(h http.Header) string { return h.Get("x-api-key") },
		BaseURL:            func() string { return defaultBaseURL },
		NewClient: func(apiKey, baseURL string, opts upstream.Options) *upstream.Client {
			if baseURL == "" {
				baseURL = defaultBaseURL
			}
			return upstream.NewClient(baseURL, apiKey, upstream.AnthropicAuth, opts)
		},
		Execute: func(ctx context.Context, c *upstream.Client, body []byte, _ string) ([]byte, error) {
			return c.Do(ctx, "/v1/messages", body)
		},
		ExecuteStream: func(ctx context.Context, c *upstream.Client, body []byte, _ string) (*upstream.ChunkStream, error) {
			body, _ = sjson.SetBytes(body, "stream", true)
			return c.Stream(ctx, "/v1/messages", body)
		},
		ExtractErrorMessage: ExtractErrorMessage,
	}
}

// =============================================================================
// GEMINI
// =============================================================================

func newGeminiFactory() *Factory {
	const defaultBaseURL = "https://generativelanguage.googleapis.com"
	return &Factory{
		Provider:           ProviderGemini,
		InteractionType:    InteractionGenerateContent,
		NewRequestAdapter:  func(body []byte) RequestAdapter { return NewGeminiRequestAdapter(body) },
		NewResponseAdapter: func(body []byte) ResponseAdapter { return NewGeminiResponseAdapter(body) },
		NewStreamAdapter:   func() StreamAdapter { return NewGeminiStreamAdapter() },
		ExtractAPIKey:      func(h http.Header) string { return h.Get("x-goog-api-key") },
		BaseURL:            func() string { return defaultBaseURL },
		NewClient: func(apiKey, baseURL string, opts upstream.Options) *upstream.Client {
			if baseURL == "" {
				baseURL = defaultBaseURL
			}
			return upstream.NewClient(baseURL, apiKey, upstream.HeaderAuth("x-goog-api-key"), opts)
		},
		// The model lives in the URL, not the body.
		Execute: func(ctx context.Context, c *upstream.Client, body []byte, model string) ([]byte, error) {
			return c.Do(ctx, fmt.Sprintf("/v1beta/models/%s:generateContent", model), body)
		},
		ExecuteStream: func(ctx context.Context, c *upstream.Client, body []byte, model string) (*upstream.ChunkStream, error) {
			return c.Stream(ctx, fmt.Sprintf("/v1beta/models/%s:streamGenerateContent?alt=sse", model), body)
		},
		ExtractErrorMessage: ExtractErrorMessage,
	}
}

// =============================================================================
// BEDROCK
// =============================================================================

func newBedrockFactory() *Factory {
	signer := upstream.NewBedrockSigner()
	return &Factory{
		Provider:           ProviderBedrock,
		InteractionType:    InteractionMessages,
		NewRequestAdapter:  func(body []byte) RequestAdapter { return NewBedrockRequestAdapter(body) },
		NewResponseAdapter: func(body []byte) ResponseAdapter { return NewBedrockResponseAdapter(body) },
		NewStreamAdapter:   func() StreamAdapter { return NewBedrockStreamAdapter() },
		// Auth is SigV4 from the AWS credential chain, never a header key.
		ExtractAPIKey: func(http.Header) string { return "" },
		BaseURL:       func() string { return signer.BaseURL() },
		NewClient: func(_, baseURL string, opts upstream.Options) *upstream.Client {
			if baseURL == "" {
				baseURL = signer.BaseURL()
			}
			opts.Signer = signer
			return upstream.NewClient(baseURL, "", nil, opts)
		},
		Execute: func(ctx context.Context, c *upstream.Client, body []byte, model string) ([]byte, error) {
			return c.Do(ctx, fmt.Sprintf("/model/%s/invoke", model), body)
		},
		// invoke-with-response-stream frames chunks in the AWS binary event
		// stream encoding, which this SSE transport does not decode.
		ExecuteStream: func(context.Context, *upstream.Client, []byte, string) (*upstream.ChunkStream, error) {
			return nil, fmt.Errorf("bedrock does not support SSE streaming")
		},
		ExtractErrorMessage: ExtractErrorMessage,
	}
}
