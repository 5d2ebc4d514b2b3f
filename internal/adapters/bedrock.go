package adapters

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ProviderBedrock is the adapter name for Anthropic models served through
// AWS Bedrock Runtime. The body is the Anthropic Messages wire; Bedrock
// moves the model into the URL and rejects model/stream fields in the body.
const ProviderBedrock = "bedrock"

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// BedrockRequestAdapter reads the Anthropic wire but emits a Bedrock
// invocation body.
type BedrockRequestAdapter struct {
	*AnthropicRequestAdapter
}

// NewBedrockRequestAdapter wraps a raw Messages-shaped request destined for
// Bedrock. The inbound body still carries model and stream; Model() and
// IsStreaming() read them before ToProviderRequest strips them.
func NewBedrockRequestAdapter(body []byte) *BedrockRequestAdapter {
	inner := NewAnthropicRequestAdapter(body)
	inner.provider = ProviderBedrock
	return &BedrockRequestAdapter{AnthropicRequestAdapter: inner}
}

// ToProviderRequest emits the invocation body: staged patches applied,
// anthropic_version guaranteed, model and stream dropped (both live in the
// invocation URL on Bedrock).
func (a *BedrockRequestAdapter) ToProviderRequest() []byte {
	out := a.AnthropicRequestAdapter.ToProviderRequest()

	if !gjson.GetBytes(out, "anthropic_version").Exists() {
		out, _ = sjson.SetBytes(out, "anthropic_version", bedrockAnthropicVersion)
	}
	out, _ = sjson.DeleteBytes(out, "model")
	out, _ = sjson.DeleteBytes(out, "stream")
	return out
}

var _ RequestAdapter = (*BedrockRequestAdapter)(nil)

// BedrockResponseAdapter reads the Anthropic-shaped invocation response.
type BedrockResponseAdapter struct {
	*AnthropicResponseAdapter
}

// NewBedrockResponseAdapter wraps a raw Bedrock invocation response.
func NewBedrockResponseAdapter(body []byte) *BedrockResponseAdapter {
	return &BedrockResponseAdapter{AnthropicResponseAdapter: NewAnthropicResponseAdapter(body)}
}

func (a *BedrockResponseAdapter) Provider() string { return ProviderBedrock }

var _ ResponseAdapter = (*BedrockResponseAdapter)(nil)

// BedrockStreamAdapter accumulates the Anthropic event payloads Bedrock
// delivers inside its response stream.
type BedrockStreamAdapter struct {
	*AnthropicStreamAdapter
}

// NewBedrockStreamAdapter creates a fresh accumulator for one stream.
func NewBedrockStreamAdapter() *BedrockStreamAdapter {
	return &BedrockStreamAdapter{AnthropicStreamAdapter: NewAnthropicStreamAdapter()}
}

func (s *BedrockStreamAdapter) Provider() string { return ProviderBedrock }

var _ StreamAdapter = (*BedrockStreamAdapter)(nil)
