package adapters

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ProviderMiniMax is the adapter name for the MiniMax wire.
//
// MiniMax speaks the OpenAI Chat Completions format with one extension:
// reasoning models interleave visible text with reasoning output, and the
// request flag reasoning_split asks the API to deliver reasoning as a
// separate reasoning_content delta instead of inline text. The adapters here
// always request the split and keep a separate reasoning accumulator on
// streams.
const ProviderMiniMax = "minimax"

// MiniMaxRequestAdapter wraps a MiniMax request. All read accessors delegate
// to the OpenAI translation; ToProviderRequest additionally injects
// reasoning_split when the client did not set it.
type MiniMaxRequestAdapter struct {
	*OpenAIRequestAdapter
}

// NewMiniMaxRequestAdapter wraps a raw MiniMax request.
func NewMiniMaxRequestAdapter(body []byte) *MiniMaxRequestAdapter {
	return &MiniMaxRequestAdapter{
		OpenAIRequestAdapter: newOpenAICompatibleRequestAdapter(ProviderMiniMax, body),
	}
}

func (a *MiniMaxRequestAdapter) ToProviderRequest() []byte {
	out := a.OpenAIRequestAdapter.ToProviderRequest()
	if !gjson.GetBytes(out, "reasoning_split").Exists() {
		out, _ = sjson.SetBytes(out, "reasoning_split", true)
	}
	return out
}

var _ RequestAdapter = (*MiniMaxRequestAdapter)(nil)

// NewMiniMaxResponseAdapter wraps a raw MiniMax response. The response wire
// is OpenAI-shaped; reasoning arrives as message.reasoning_content, which the
// shared adapter already surfaces.
func NewMiniMaxResponseAdapter(body []byte) *OpenAIResponseAdapter {
	return newOpenAICompatibleResponseAdapter(ProviderMiniMax, body)
}

// NewMiniMaxStreamAdapter creates a stream accumulator for MiniMax chunks.
// reasoning_content deltas accumulate into the separate reasoning buffer.
func NewMiniMaxStreamAdapter() *OpenAIStreamAdapter {
	return newOpenAICompatibleStreamAdapter(ProviderMiniMax)
}
