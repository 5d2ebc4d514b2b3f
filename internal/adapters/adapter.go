// Package adapters translates provider-native LLM wire formats to and from
// the canonical model.
//
// DESIGN: The proxy supports heterogeneous providers (OpenAI-compatible,
// Anthropic, Gemini, MiniMax, vLLM, Ollama). Each provider contributes three
// adapter kinds behind shared interfaces:
//
//   - RequestAdapter:  read accessors in canonical form + staged mutations
//   - ResponseAdapter: canonical extraction from a complete response
//   - StreamAdapter:   stateful accumulator over SSE chunks
//
// Native request/response/chunk shapes are raw JSON bodies. Reads go through
// gjson; staged mutations are folded onto a copy of the pristine body with
// sjson at ToProviderRequest time. The original body is never mutated, so an
// adapter with no staged mutations replays the wire byte-for-byte.
//
// FLOW:
//  1. Gateway resolves the provider's Factory from the registry
//  2. Factory wraps the parsed body in a RequestAdapter
//  3. Gateway may mutate the adapter (model override, compressed tool results)
//  4. Gateway executes; streaming chunks feed a fresh StreamAdapter
//  5. At stream end the StreamAdapter synthesizes a complete response for
//     usage/cost bookkeeping
//
// To add a provider: implement the three adapters and register a Factory.
package adapters

import (
	"time"

	"github.com/prism-gw/prism/internal/canonical"
)

// RequestAdapter wraps one provider-native request for the lifetime of one
// proxied call. Implementations never error on malformed data: unparseable
// tool arguments resolve to empty objects and unknown roles pass through.
// Instances are not shared across requests.
type RequestAdapter interface {
	// Provider returns the adapter identifier (e.g. "openai", "anthropic").
	Provider() string

	// Model returns the override model if SetModel was called, else the
	// original model. No validation that the name is known.
	Model() string

	// IsStreaming reports the native streaming flag; absence means false.
	IsStreaming() bool

	// Messages returns the full conversation in canonical form. Tool-result
	// names are resolved by backward correlation scan (see ResolveToolName).
	Messages() []canonical.Message

	// ToolResults returns all tool-result messages, independent of pairing
	// order with their originating assistant messages.
	ToolResults() []canonical.ToolResult

	// Tools returns the declared callable tools normalized to canonical
	// definitions.
	Tools() []canonical.ToolDefinition

	// SetModel stages a model override. The underlying request is untouched
	// until ToProviderRequest.
	SetModel(model string)

	// UpdateToolResult stages a content replacement for the tool result
	// correlated to toolCallID. Later calls for the same id overwrite.
	UpdateToolResult(toolCallID, content string)

	// ToProviderRequest folds all staged mutations onto a fresh copy of the
	// native request. The value previously returned by OriginalRequest is
	// never mutated.
	ToProviderRequest() []byte

	// OriginalRequest returns the pristine native request exactly as
	// received, never reflecting staged mutations.
	OriginalRequest() []byte
}

// ResponseAdapter wraps one complete (non-streamed) provider response.
type ResponseAdapter interface {
	Provider() string
	ID() string
	Model() string

	// Text returns the response text, empty when no choice or null content.
	Text() string

	// ToolCalls returns the response's tool calls. Malformed argument JSON
	// yields empty arguments with id and name preserved for correlation.
	ToolCalls() []canonical.ToolCall
	HasToolCalls() bool

	// Usage maps provider-native usage fields, zero-defaulting missing ones.
	Usage() canonical.Usage

	// ToRefusalResponse synthesizes a response whose stop reason is forced to
	// the provider's "stop" equivalent and whose content is replaced, keeping
	// id, model and usage from the original. Used when policy blocks a tool
	// call; the client still receives a normal completion.
	ToRefusalResponse(refusalMessage, contentMessage string) []byte

	// OriginalResponse returns the wrapped value unmodified.
	OriginalResponse() []byte
}

// ChunkResult is the outcome of feeding one chunk to a StreamAdapter.
type ChunkResult struct {
	// SSE is the wire text to forward to the client immediately, already
	// framed. Empty when the chunk produced nothing forwardable.
	SSE string

	// IsToolCall marks chunks carrying tool-call deltas.
	IsToolCall bool

	// IsFinal becomes true only once a usage payload has been observed.
	// A finish reason alone does not terminate the stream.
	IsFinal bool

	// Terminal marks a chunk whose SSE payload is the wire's own
	// end-of-stream frame, replayed verbatim (Anthropic's message_stop).
	// The proxy must not append FormatEndSSE after forwarding it. Wires
	// whose final chunk is an ordinary data frame (the OpenAI family's
	// usage chunk) never set it, so the client still receives the
	// terminal sentinel.
	Terminal bool
}

// StreamAdapter folds an ordered sequence of provider-specific chunks into
// forwardable wire fragments and, at stream end, one synthesized complete
// response. One instance per in-flight stream; chunk processing is strictly
// sequential and instances are never reused across requests.
type StreamAdapter interface {
	Provider() string

	// ProcessChunk consumes the next chunk's data payload (the JSON after
	// "data:", or the event payload for event-framed providers).
	ProcessChunk(raw []byte) ChunkResult

	// ToProviderResponse synthesizes a complete native-shaped response from
	// the accumulated state: buffered text, tool calls with their argument
	// strings left unparsed where the wire allows, and the recorded usage
	// (zero when the stream ended early).
	ToProviderResponse() []byte

	// RawToolCallEvents returns the verbatim tool-call chunks as SSE frames
	// for exact replay; clients may depend on upstream formatting.
	RawToolCallEvents() []string

	// SSEHeaders returns the fixed response headers for the client stream.
	SSEHeaders() map[string]string

	// FormatTextDeltaSSE frames server-injected incremental text (e.g. a
	// refusal message) as one native-shaped chunk.
	FormatTextDeltaSSE(text string) string

	// FormatCompleteTextSSE frames server-injected text as a complete
	// message chunk carrying the provider's terminal stop reason.
	FormatCompleteTextSSE(text string) string

	// FormatEndSSE returns the terminal sentinel framing.
	FormatEndSSE() string

	// FirstChunkLatency is the time from adapter creation to the first
	// processed chunk. Zero until a chunk arrives.
	FirstChunkLatency() time.Duration
}

// SSEHeaders is the fixed header set for streaming responses to the client.
func SSEHeaders() map[string]string {
	return map[string]string{
		"Content-Type":  "text/event-stream",
		"Cache-Control": "no-cache",
		"Connection":    "keep-alive",
	}
}
