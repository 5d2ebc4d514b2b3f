package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/prism-gw/prism/internal/canonical"
)

// =============================================================================
// REQUEST ADAPTER
// =============================================================================

func TestGeminiRequest_ModelPrefixStripped(t *testing.T) {
	a := NewGeminiRequestAdapter([]byte(`{"model":"models/gemini-2.5-pro"}`))
	assert.Equal(t, "gemini-2.5-pro", a.Model())

	b := NewGeminiRequestAdapter([]byte(`{"model":"gemini-2.5-flash"}`))
	assert.Equal(t, "gemini-2.5-flash", b.Model())
}

func TestGeminiRequest_RoundTripIdentity(t *testing.T) {
	body := []byte(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}],"generationConfig":{"temperature":0.5}}`)
	a := NewGeminiRequestAdapter(body)
	assert.Equal(t, body, a.ToProviderRequest())
}

func TestGeminiRequest_Messages(t *testing.T) {
	body := []byte(`{
		"systemInstruction": {"parts": [{"text": "Be brief."}]},
		"contents": [
			{"role": "user", "parts": [{"text": "weather?"}]},
			{"role": "model", "parts": [{"functionCall": {"name": "get_weather", "args": {"location": "NY"}}}]},
			{"role": "user", "parts": [{"functionResponse": {"name": "get_weather", "response": {"result": "{\"temp\": 20}"}}}]}
		]
	}`)
	a := NewGeminiRequestAdapter(body)

	msgs := a.Messages()
	require.Len(t, msgs, 4)

	assert.Equal(t, canonical.RoleSystem, msgs[0].Role)
	assert.Equal(t, "Be brief.", msgs[0].Content)

	assert.Equal(t, canonical.RoleUser, msgs[1].Role)

	// "model" maps to assistant; the call name doubles as the id
	assert.Equal(t, canonical.RoleAssistant, msgs[2].Role)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, "get_weather", msgs[2].ToolCalls[0].ID)
	assert.Equal(t, map[string]any{"location": "NY"}, msgs[2].ToolCalls[0].Arguments)

	assert.Equal(t, canonical.RoleTool, msgs[3].Role)
	require.Len(t, msgs[3].ToolResults, 1)
	assert.Equal(t, "get_weather", msgs[3].ToolResults[0].Name)
	// the single-key result envelope unwraps and its string parses as JSON
	assert.Equal(t, map[string]any{"temp": float64(20)}, msgs[3].ToolResults[0].Content)
}

func TestGeminiRequest_FunctionResponseObjectPassesThrough(t *testing.T) {
	body := []byte(`{
		"contents": [
			{"role": "user", "parts": [{"functionResponse": {"name": "lookup", "response": {"rows": 3, "status": "ok"}}}]}
		]
	}`)
	a := NewGeminiRequestAdapter(body)

	results := a.ToolResults()
	require.Len(t, results, 1)
	assert.Equal(t, map[string]any{"rows": float64(3), "status": "ok"}, results[0].Content)
}

func TestGeminiRequest_Tools(t *testing.T) {
	body := []byte(`{
		"tools": [{"functionDeclarations": [
			{"name": "get_weather", "description": "Weather lookup", "parameters": {"type": "object"}}
		]}]
	}`)
	a := NewGeminiRequestAdapter(body)

	defs := a.Tools()
	require.Len(t, defs, 1)
	assert.Equal(t, "get_weather", defs[0].Name)
	assert.Equal(t, "object", defs[0].InputSchema["type"])
}

func TestGeminiRequest_UpdateToolResultWrapsReplacement(t *testing.T) {
	body := []byte(`{
		"contents": [
			{"role": "user", "parts": [{"functionResponse": {"name": "lookup", "response": {"result": "original"}}}]}
		]
	}`)
	a := NewGeminiRequestAdapter(body)
	a.UpdateToolResult("lookup", "compressed")

	out := a.ToProviderRequest()
	// the wire requires response to be an object
	assert.Equal(t, "compressed", gjson.GetBytes(out, "contents.0.parts.0.functionResponse.response.result").String())
}

// =============================================================================
// RESPONSE ADAPTER
// =============================================================================

func TestGeminiResponse_Basics(t *testing.T) {
	body := []byte(`{
		"responseId": "resp-1",
		"modelVersion": "gemini-2.5-pro",
		"candidates": [{"content": {"role": "model", "parts": [{"text": "Hello"}, {"text": "world"}]}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 14, "candidatesTokenCount": 6}
	}`)
	a := NewGeminiResponseAdapter(body)

	assert.Equal(t, "resp-1", a.ID())
	assert.Equal(t, "gemini-2.5-pro", a.Model())
	assert.Equal(t, "Hello\nworld", a.Text())
	assert.Equal(t, canonical.Usage{InputTokens: 14, OutputTokens: 6}, a.Usage())
}

func TestGeminiResponse_ToolCalls(t *testing.T) {
	body := []byte(`{
		"candidates": [{"content": {"parts": [
			{"functionCall": {"name": "get_weather", "args": {"location": "NY"}}}
		]}}]
	}`)
	a := NewGeminiResponseAdapter(body)

	require.True(t, a.HasToolCalls())
	calls := a.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "get_weather", calls[0].ID)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.Equal(t, map[string]any{"location": "NY"}, calls[0].Arguments)
}

func TestGeminiResponse_ToRefusalResponse(t *testing.T) {
	body := []byte(`{
		"responseId": "resp-1",
		"modelVersion": "gemini-2.5-pro",
		"candidates": [{"content": {"parts": [{"functionCall": {"name": "rm_rf", "args": {}}}]}, "finishReason": "TOOL_CALL"}],
		"usageMetadata": {"promptTokenCount": 14, "candidatesTokenCount": 6}
	}`)
	a := NewGeminiResponseAdapter(body)

	out := a.ToRefusalResponse("blocked", "I can't do that.")

	assert.Equal(t, "STOP", gjson.GetBytes(out, "candidates.0.finishReason").String())
	parts := gjson.GetBytes(out, "candidates.0.content.parts").Array()
	require.Len(t, parts, 1)
	assert.Equal(t, "I can't do that.", parts[0].Get("text").String())
	assert.Equal(t, "resp-1", gjson.GetBytes(out, "responseId").String())
	assert.Equal(t, int64(14), gjson.GetBytes(out, "usageMetadata.promptTokenCount").Int())
}

func TestParseGeminiPath(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		model     string
		streaming bool
	}{
		{"streaming verb", "/v1beta/models/gemini-2.5-pro:streamGenerateContent", "gemini-2.5-pro", true},
		{"complete verb", "/v1beta/models/gemini-2.5-flash:generateContent", "gemini-2.5-flash", false},
		{"no version prefix", "/models/gemini-2.5-pro:streamGenerateContent", "gemini-2.5-pro", true},
		{"model without verb", "/v1beta/models/gemini-2.5-pro", "gemini-2.5-pro", false},
		{"no models segment", "/chat/completions", "", false},
		{"empty path", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, streaming := ParseGeminiPath(tt.path)
			assert.Equal(t, tt.model, model)
			assert.Equal(t, tt.streaming, streaming)
		})
	}
}
