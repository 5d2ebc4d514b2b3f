package adapters

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/prism-gw/prism/internal/canonical"
)

// ProviderAnthropic is the adapter name for the Anthropic Messages wire.
const ProviderAnthropic = "anthropic"

// =============================================================================
// REQUEST ADAPTER
// =============================================================================

// AnthropicRequestAdapter wraps an Anthropic Messages API request body.
// Anthropic expresses tool calls as content blocks: assistant messages carry
// type:"tool_use" blocks, and the following user message carries
// type:"tool_result" blocks correlated by tool_use_id.
type AnthropicRequestAdapter struct {
	requestBase
}

// NewAnthropicRequestAdapter wraps a raw Messages API request.
func NewAnthropicRequestAdapter(body []byte) *AnthropicRequestAdapter {
	return &AnthropicRequestAdapter{requestBase: newRequestBase(ProviderAnthropic, body)}
}

func (a *AnthropicRequestAdapter) Model() string {
	if a.modelOverride != "" {
		return a.modelOverride
	}
	return gjson.GetBytes(a.original, "model").String()
}

func (a *AnthropicRequestAdapter) IsStreaming() bool {
	return gjson.GetBytes(a.original, "stream").Type == gjson.True
}

// Messages translates messages[] to canonical form. A user message whose
// content carries tool_result blocks becomes a canonical tool turn so the
// role-tool invariant (tool messages carry their results) holds.
func (a *AnthropicRequestAdapter) Messages() []canonical.Message {
	raw := gjson.GetBytes(a.original, "messages").Array()
	msgs := make([]canonical.Message, 0, len(raw)+1)

	if system := gjson.GetBytes(a.original, "system"); system.Exists() {
		msgs = append(msgs, canonical.Message{
			Role:    canonical.RoleSystem,
			Content: textContent(system),
		})
	}

	for _, m := range raw {
		msg := canonical.Message{Role: canonical.Role(m.Get("role").String())}
		content := m.Get("content")

		if content.Type == gjson.String {
			msg.Content = content.String()
			msgs = append(msgs, msg)
			continue
		}

		for _, block := range content.Array() {
			switch block.Get("type").String() {
			case "text":
				if msg.Content != "" {
					msg.Content += "\n"
				}
				msg.Content += block.Get("text").String()
			case "thinking":
				msg.Reasoning += block.Get("thinking").String()
			case "tool_use":
				msg.ToolCalls = append(msg.ToolCalls, canonical.ToolCall{
					ID:        block.Get("id").String(),
					Name:      block.Get("name").String(),
					Arguments: schemaMap(block.Get("input")),
				})
			case "tool_result":
				id := block.Get("tool_use_id").String()
				msg.ToolResults = append(msg.ToolResults, canonical.ToolResult{
					ID:      id,
					Name:    resolveToolNameOrPlaceholder(msgs, len(msgs), id),
					Content: parseToolResultContent(textContent(block.Get("content"))),
					IsError: block.Get("is_error").Type == gjson.True,
				})
			}
		}

		if len(msg.ToolResults) > 0 {
			msg.Role = canonical.RoleTool
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func (a *AnthropicRequestAdapter) ToolResults() []canonical.ToolResult {
	var results []canonical.ToolResult
	for _, msg := range a.Messages() {
		results = append(results, msg.ToolResults...)
	}
	return results
}

func (a *AnthropicRequestAdapter) Tools() []canonical.ToolDefinition {
	var defs []canonical.ToolDefinition
	for _, t := range gjson.GetBytes(a.original, "tools").Array() {
		defs = append(defs, canonical.ToolDefinition{
			Name:        t.Get("name").String(),
			Description: t.Get("description").String(),
			InputSchema: schemaMap(t.Get("input_schema")),
		})
	}
	return defs
}

// ToProviderRequest folds staged patches over a copy of the original.
// Tool-result replacements rewrite the matching block's content, collapsing
// block-array content to the replacement string the way the upstream API
// accepts both.
func (a *AnthropicRequestAdapter) ToProviderRequest() []byte {
	out := a.copyBody()

	if a.modelOverride != "" {
		out, _ = sjson.SetBytes(out, "model", a.modelOverride)
	}

	for id, content := range a.toolResultUpdates {
		out = a.patchToolResult(out, id, content)
	}
	return out
}

func (a *AnthropicRequestAdapter) patchToolResult(body []byte, toolUseID, content string) []byte {
	for i, m := range gjson.GetBytes(body, "messages").Array() {
		blocks := m.Get("content")
		if !blocks.IsArray() {
			continue
		}
		for j, block := range blocks.Array() {
			if block.Get("type").String() != "tool_result" ||
				block.Get("tool_use_id").String() != toolUseID {
				continue
			}
			path := fmt.Sprintf("messages.%d.content.%d.content", i, j)
			body, _ = sjson.SetBytes(body, path, content)
			return body
		}
	}
	return body
}

var _ RequestAdapter = (*AnthropicRequestAdapter)(nil)

// =============================================================================
// RESPONSE ADAPTER
// =============================================================================

// AnthropicResponseAdapter wraps a complete Messages API response body.
type AnthropicResponseAdapter struct {
	original []byte
}

// NewAnthropicResponseAdapter wraps a raw Messages API response.
func NewAnthropicResponseAdapter(body []byte) *AnthropicResponseAdapter {
	return &AnthropicResponseAdapter{original: body}
}

func (a *AnthropicResponseAdapter) Provider() string { return ProviderAnthropic }

func (a *AnthropicResponseAdapter) ID() string {
	return gjson.GetBytes(a.original, "id").String()
}

func (a *AnthropicResponseAdapter) Model() string {
	return gjson.GetBytes(a.original, "model").String()
}

// Text joins the response's text blocks; empty when there are none.
func (a *AnthropicResponseAdapter) Text() string {
	return textContent(gjson.GetBytes(a.original, "content"))
}

func (a *AnthropicResponseAdapter) ToolCalls() []canonical.ToolCall {
	var calls []canonical.ToolCall
	for _, block := range gjson.GetBytes(a.original, "content").Array() {
		if block.Get("type").String() != "tool_use" {
			continue
		}
		calls = append(calls, canonical.ToolCall{
			ID:        block.Get("id").String(),
			Name:      block.Get("name").String(),
			Arguments: schemaMap(block.Get("input")),
		})
	}
	return calls
}

func (a *AnthropicResponseAdapter) HasToolCalls() bool {
	return len(a.ToolCalls()) > 0
}

func (a *AnthropicResponseAdapter) Usage() canonical.Usage {
	return canonical.Usage{
		InputTokens:  int(gjson.GetBytes(a.original, "usage.input_tokens").Int()),
		OutputTokens: int(gjson.GetBytes(a.original, "usage.output_tokens").Int()),
	}
}

// ToRefusalResponse forces stop_reason to "end_turn" and replaces the
// content with a single text block, keeping id, model and usage.
func (a *AnthropicResponseAdapter) ToRefusalResponse(refusalMessage, contentMessage string) []byte {
	out := append([]byte(nil), a.original...)
	out, _ = sjson.SetBytes(out, "stop_reason", "end_turn")

	blocks, err := json.Marshal([]map[string]any{{"type": "text", "text": contentMessage}})
	if err != nil {
		return out
	}
	out, _ = sjson.SetRawBytes(out, "content", blocks)
	return out
}

func (a *AnthropicResponseAdapter) OriginalResponse() []byte { return a.original }

var _ ResponseAdapter = (*AnthropicResponseAdapter)(nil)
