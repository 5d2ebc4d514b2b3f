package adapters

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/prism-gw/prism/internal/canonical"
)

// ProviderGemini is the adapter name for the Google Gemini wire.
const ProviderGemini = "gemini"

// =============================================================================
// REQUEST ADAPTER
// =============================================================================

// GeminiRequestAdapter wraps a Gemini generateContent request body.
// Gemini is structurally unlike both OpenAI and Anthropic: conversation turns
// live in contents[]/parts[], tool calls are functionCall parts, tool results
// are functionResponse parts, and there are no call ids, so correlation runs
// on the function name.
type GeminiRequestAdapter struct {
	requestBase
}

// NewGeminiRequestAdapter wraps a raw generateContent request.
func NewGeminiRequestAdapter(body []byte) *GeminiRequestAdapter {
	return &GeminiRequestAdapter{requestBase: newRequestBase(ProviderGemini, body)}
}

// ParseGeminiPath extracts the model name and streaming verb from a native
// invocation path such as /v1beta/models/gemini-2.5-pro:streamGenerateContent.
// Unlike every other wire here, Gemini carries both in the URL, not the body.
// The model is empty when the path holds no models segment.
func ParseGeminiPath(path string) (model string, streaming bool) {
	const marker = "/models/"
	i := strings.LastIndex(path, marker)
	if i < 0 {
		return "", false
	}
	rest := path[i+len(marker):]
	model, verb, found := strings.Cut(rest, ":")
	if !found {
		return model, false
	}
	return model, verb == "streamGenerateContent"
}

// Model returns the override, else the body's model field. Gemini normally
// carries the model in the URL path; clients that include it in the body get
// the "models/" prefix stripped.
func (a *GeminiRequestAdapter) Model() string {
	if a.modelOverride != "" {
		return a.modelOverride
	}
	model := gjson.GetBytes(a.original, "model").String()
	return strings.TrimPrefix(model, "models/")
}

func (a *GeminiRequestAdapter) IsStreaming() bool {
	return gjson.GetBytes(a.original, "stream").Type == gjson.True
}

func (a *GeminiRequestAdapter) Messages() []canonical.Message {
	raw := gjson.GetBytes(a.original, "contents").Array()
	msgs := make([]canonical.Message, 0, len(raw)+1)

	if sys := gjson.GetBytes(a.original, "systemInstruction.parts"); sys.IsArray() {
		msgs = append(msgs, canonical.Message{
			Role:    canonical.RoleSystem,
			Content: joinTextParts(sys),
		})
	}

	for _, content := range raw {
		msg := canonical.Message{Role: geminiRole(content.Get("role").String())}

		for _, part := range content.Get("parts").Array() {
			switch {
			case part.Get("text").Exists():
				if msg.Content != "" {
					msg.Content += "\n"
				}
				msg.Content += part.Get("text").String()
			case part.Get("functionCall").Exists():
				call := part.Get("functionCall")
				msg.ToolCalls = append(msg.ToolCalls, canonical.ToolCall{
					ID:        call.Get("name").String(),
					Name:      call.Get("name").String(),
					Arguments: schemaMap(call.Get("args")),
				})
			case part.Get("functionResponse").Exists():
				resp := part.Get("functionResponse")
				name := resp.Get("name").String()
				msg.ToolResults = append(msg.ToolResults, canonical.ToolResult{
					ID:      name,
					Name:    name,
					Content: geminiResponseContent(resp.Get("response")),
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

func (a *GeminiRequestAdapter) ToolResults() []canonical.ToolResult {
	var results []canonical.ToolResult
	for _, msg := range a.Messages() {
		results = append(results, msg.ToolResults...)
	}
	return results
}

func (a *GeminiRequestAdapter) Tools() []canonical.ToolDefinition {
	var defs []canonical.ToolDefinition
	for _, tool := range gjson.GetBytes(a.original, "tools").Array() {
		for _, fn := range tool.Get("functionDeclarations").Array() {
			defs = append(defs, canonical.ToolDefinition{
				Name:        fn.Get("name").String(),
				Description: fn.Get("description").String(),
				InputSchema: schemaMap(fn.Get("parameters")),
			})
		}
	}
	return defs
}

func (a *GeminiRequestAdapter) ToProviderRequest() []byte {
	out := a.copyBody()

	if a.modelOverride != "" && gjson.GetBytes(out, "model").Exists() {
		out, _ = sjson.SetBytes(out, "model", a.modelOverride)
	}

	for name, content := range a.toolResultUpdates {
		out = a.patchFunctionResponse(out, name, content)
	}
	return out
}

func (a *GeminiRequestAdapter) patchFunctionResponse(body []byte, name, content string) []byte {
	for i, c := range gjson.GetBytes(body, "contents").Array() {
		for j, part := range c.Get("parts").Array() {
			resp := part.Get("functionResponse")
			if !resp.Exists() || resp.Get("name").String() != name {
				continue
			}
			// The wire requires response to be an object; wrap the
			// replacement string.
			path := fmt.Sprintf("contents.%d.parts.%d.functionResponse.response", i, j)
			wrapped, err := json.Marshal(map[string]string{"result": content})
			if err != nil {
				return body
			}
			body, _ = sjson.SetRawBytes(body, path, wrapped)
			return body
		}
	}
	return body
}

var _ RequestAdapter = (*GeminiRequestAdapter)(nil)

// geminiRole maps Gemini's user/model vocabulary onto the canonical roles.
func geminiRole(role string) canonical.Role {
	if role == "model" {
		return canonical.RoleAssistant
	}
	return canonical.RoleUser
}

func joinTextParts(parts gjson.Result) string {
	var b strings.Builder
	for _, part := range parts.Array() {
		if text := part.Get("text"); text.Type == gjson.String {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(text.String())
		}
	}
	return b.String()
}

// geminiResponseContent materializes a functionResponse.response value,
// unwrapping the single-key result/content/output envelope Gemini tooling
// tends to produce.
func geminiResponseContent(resp gjson.Result) any {
	if resp.Type == gjson.String {
		return parseToolResultContent(resp.String())
	}
	if m, ok := resp.Value().(map[string]any); ok {
		if len(m) == 1 {
			for _, key := range []string{"result", "content", "output"} {
				if s, ok := m[key].(string); ok {
					return parseToolResultContent(s)
				}
			}
		}
		return m
	}
	return resp.Value()
}

// =============================================================================
// RESPONSE ADAPTER
// =============================================================================

// GeminiResponseAdapter wraps a complete generateContent response body.
type GeminiResponseAdapter struct {
	original []byte
}

// NewGeminiResponseAdapter wraps a raw generateContent response.
func NewGeminiResponseAdapter(body []byte) *GeminiResponseAdapter {
	return &GeminiResponseAdapter{original: body}
}

func (a *GeminiResponseAdapter) Provider() string { return ProviderGemini }

func (a *GeminiResponseAdapter) ID() string {
	return gjson.GetBytes(a.original, "responseId").String()
}

func (a *GeminiResponseAdapter) Model() string {
	return gjson.GetBytes(a.original, "modelVersion").String()
}

func (a *GeminiResponseAdapter) Text() string {
	return joinTextParts(gjson.GetBytes(a.original, "candidates.0.content.parts"))
}

func (a *GeminiResponseAdapter) ToolCalls() []canonical.ToolCall {
	var calls []canonical.ToolCall
	for _, part := range gjson.GetBytes(a.original, "candidates.0.content.parts").Array() {
		call := part.Get("functionCall")
		if !call.Exists() {
			continue
		}
		calls = append(calls, canonical.ToolCall{
			ID:        call.Get("name").String(),
			Name:      call.Get("name").String(),
			Arguments: schemaMap(call.Get("args")),
		})
	}
	return calls
}

func (a *GeminiResponseAdapter) HasToolCalls() bool {
	return len(a.ToolCalls()) > 0
}

func (a *GeminiResponseAdapter) Usage() canonical.Usage {
	return canonical.Usage{
		InputTokens:  int(gjson.GetBytes(a.original, "usageMetadata.promptTokenCount").Int()),
		OutputTokens: int(gjson.GetBytes(a.original, "usageMetadata.candidatesTokenCount").Int()),
	}
}

// ToRefusalResponse forces finishReason to STOP and replaces the candidate's
// parts with a single text part, keeping responseId, modelVersion and usage.
func (a *GeminiResponseAdapter) ToRefusalResponse(refusalMessage, contentMessage string) []byte {
	out := append([]byte(nil), a.original...)
	out, _ = sjson.SetBytes(out, "candidates.0.finishReason", "STOP")

	parts, err := json.Marshal([]map[string]string{{"text": contentMessage}})
	if err != nil {
		return out
	}
	out, _ = sjson.SetRawBytes(out, "candidates.0.content.parts", parts)
	return out
}

func (a *GeminiResponseAdapter) OriginalResponse() []byte { return a.original }

var _ ResponseAdapter = (*GeminiResponseAdapter)(nil)
