package adapters

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/prism-gw/prism/internal/canonical"
)

// ProviderOpenAI is the adapter name for the OpenAI Chat Completions wire.
// vLLM and Ollama speak the same request format and delegate here.
const ProviderOpenAI = "openai"

// =============================================================================
// REQUEST ADAPTER
// =============================================================================

// OpenAIRequestAdapter wraps an OpenAI Chat Completions request body.
// Format: messages[] with role/content, assistant tool_calls[], and
// role:"tool" messages carrying tool_call_id + content.
type OpenAIRequestAdapter struct {
	requestBase
}

// NewOpenAIRequestAdapter wraps a raw Chat Completions request.
func NewOpenAIRequestAdapter(body []byte) *OpenAIRequestAdapter {
	return &OpenAIRequestAdapter{requestBase: newRequestBase(ProviderOpenAI, body)}
}

// newOpenAICompatibleRequestAdapter lets OpenAI-wire providers (vllm,
// ollama, minimax) reuse the parsing with their own provider tag.
func newOpenAICompatibleRequestAdapter(provider string, body []byte) *OpenAIRequestAdapter {
	return &OpenAIRequestAdapter{requestBase: newRequestBase(provider, body)}
}

// Model returns the staged override when present, else the request model.
func (a *OpenAIRequestAdapter) Model() string {
	if a.modelOverride != "" {
		return a.modelOverride
	}
	return gjson.GetBytes(a.original, "model").String()
}

// IsStreaming is a strict check of the native stream flag; absence is false.
func (a *OpenAIRequestAdapter) IsStreaming() bool {
	return gjson.GetBytes(a.original, "stream").Type == gjson.True
}

// Messages translates the full message list to canonical form. Tool-result
// names resolve by backward scan over the already-translated prefix.
func (a *OpenAIRequestAdapter) Messages() []canonical.Message {
	raw := gjson.GetBytes(a.original, "messages").Array()
	msgs := make([]canonical.Message, 0, len(raw))

	for _, m := range raw {
		msg := canonical.Message{
			Role:    canonical.Role(m.Get("role").String()),
			Content: textContent(m.Get("content")),
		}

		if tcs := m.Get("tool_calls"); tcs.IsArray() {
			for _, tc := range tcs.Array() {
				msg.ToolCalls = append(msg.ToolCalls, canonical.ToolCall{
					ID:        tc.Get("id").String(),
					Name:      tc.Get("function.name").String(),
					Arguments: canonical.ParseArguments(tc.Get("function.arguments").String()),
				})
			}
		}

		if msg.Role == canonical.RoleTool {
			id := m.Get("tool_call_id").String()
			msg.ToolResults = []canonical.ToolResult{{
				ID:      id,
				Name:    resolveToolNameOrPlaceholder(msgs, len(msgs), id),
				Content: parseToolResultContent(textContent(m.Get("content"))),
			}}
		}

		msgs = append(msgs, msg)
	}
	return msgs
}

// ToolResults returns every tool-result message, pairing order independent.
func (a *OpenAIRequestAdapter) ToolResults() []canonical.ToolResult {
	var results []canonical.ToolResult
	for _, msg := range a.Messages() {
		results = append(results, msg.ToolResults...)
	}
	return results
}

// Tools normalizes the declared tools[] to canonical definitions.
func (a *OpenAIRequestAdapter) Tools() []canonical.ToolDefinition {
	var defs []canonical.ToolDefinition
	for _, t := range gjson.GetBytes(a.original, "tools").Array() {
		fn := t.Get("function")
		if !fn.Exists() {
			continue
		}
		defs = append(defs, canonical.ToolDefinition{
			Name:        fn.Get("name").String(),
			Description: fn.Get("description").String(),
			InputSchema: schemaMap(fn.Get("parameters")),
		})
	}
	return defs
}

// ToProviderRequest folds the staged patch set over a copy of the original.
func (a *OpenAIRequestAdapter) ToProviderRequest() []byte {
	out := a.copyBody()

	if a.modelOverride != "" {
		out, _ = sjson.SetBytes(out, "model", a.modelOverride)
	}

	for id, content := range a.toolResultUpdates {
		for i, m := range gjson.GetBytes(out, "messages").Array() {
			if m.Get("role").String() != "tool" || m.Get("tool_call_id").String() != id {
				continue
			}
			out, _ = sjson.SetBytes(out, fmt.Sprintf("messages.%d.content", i), content)
			break
		}
	}
	return out
}

var _ RequestAdapter = (*OpenAIRequestAdapter)(nil)

// =============================================================================
// RESPONSE ADAPTER
// =============================================================================

// OpenAIResponseAdapter wraps a complete Chat Completions response body.
type OpenAIResponseAdapter struct {
	provider string
	original []byte
}

// NewOpenAIResponseAdapter wraps a raw Chat Completions response.
func NewOpenAIResponseAdapter(body []byte) *OpenAIResponseAdapter {
	return &OpenAIResponseAdapter{provider: ProviderOpenAI, original: body}
}

func newOpenAICompatibleResponseAdapter(provider string, body []byte) *OpenAIResponseAdapter {
	return &OpenAIResponseAdapter{provider: provider, original: body}
}

func (a *OpenAIResponseAdapter) Provider() string { return a.provider }

func (a *OpenAIResponseAdapter) ID() string {
	return gjson.GetBytes(a.original, "id").String()
}

func (a *OpenAIResponseAdapter) Model() string {
	return gjson.GetBytes(a.original, "model").String()
}

// Text returns the first choice's content; empty when no choice exists or
// content is null.
func (a *OpenAIResponseAdapter) Text() string {
	return gjson.GetBytes(a.original, "choices.0.message.content").String()
}

// ToolCalls extracts the first choice's tool calls. Malformed argument JSON
// resolves to empty arguments with id and name preserved.
func (a *OpenAIResponseAdapter) ToolCalls() []canonical.ToolCall {
	var calls []canonical.ToolCall
	for _, tc := range gjson.GetBytes(a.original, "choices.0.message.tool_calls").Array() {
		calls = append(calls, canonical.ToolCall{
			ID:        tc.Get("id").String(),
			Name:      tc.Get("function.name").String(),
			Arguments: canonical.ParseArguments(tc.Get("function.arguments").String()),
		})
	}
	return calls
}

func (a *OpenAIResponseAdapter) HasToolCalls() bool {
	return len(gjson.GetBytes(a.original, "choices.0.message.tool_calls").Array()) > 0
}

func (a *OpenAIResponseAdapter) Usage() canonical.Usage {
	return canonical.Usage{
		InputTokens:  int(gjson.GetBytes(a.original, "usage.prompt_tokens").Int()),
		OutputTokens: int(gjson.GetBytes(a.original, "usage.completion_tokens").Int()),
	}
}

// ToRefusalResponse forces finish_reason to "stop", replaces the message
// content, records the refusal, and drops the blocked tool calls. Every
// other top-level field (id, model, usage) is preserved.
func (a *OpenAIResponseAdapter) ToRefusalResponse(refusalMessage, contentMessage string) []byte {
	out := append([]byte(nil), a.original...)
	out, _ = sjson.SetBytes(out, "choices.0.finish_reason", "stop")
	out, _ = sjson.SetBytes(out, "choices.0.message.content", contentMessage)
	out, _ = sjson.SetBytes(out, "choices.0.message.refusal", refusalMessage)
	out, _ = sjson.DeleteBytes(out, "choices.0.message.tool_calls")
	return out
}

func (a *OpenAIResponseAdapter) OriginalResponse() []byte { return a.original }

var _ ResponseAdapter = (*OpenAIResponseAdapter)(nil)

// =============================================================================
// SYNTHESIZED RESPONSE SHAPE (stream end)
// =============================================================================

// openAIResponse is the native shape synthesized by the stream adapter.
type openAIResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
}

type openAIChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIMessage struct {
	Role             string           `json:"role"`
	Content          *string          `json:"content"`
	ReasoningContent string           `json:"reasoning_content,omitempty"`
	ToolCalls        []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name string `json:"name"`
	// Arguments stays the accumulated string, not parsed, because the native
	// wire carries tool arguments as a JSON-encoded string.
	Arguments string `json:"arguments"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func marshalOrEmptyObject(v any) []byte {
	out, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return out
}
