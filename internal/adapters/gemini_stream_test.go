package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// =============================================================================
// STREAM ACCUMULATION
// =============================================================================

func TestGeminiStream_TextChunks(t *testing.T) {
	s := NewGeminiStreamAdapter()

	chunks := []string{
		`{"responseId":"resp-1","modelVersion":"gemini-2.5-pro","candidates":[{"content":{"parts":[{"text":"Hel"}]},"index":0}]}`,
		`{"candidates":[{"content":{"parts":[{"text":"lo"}]},"index":0}]}`,
	}
	for _, chunk := range chunks {
		result := s.ProcessChunk([]byte(chunk))
		assert.Equal(t, "data: "+chunk+"\n\n", result.SSE)
		assert.False(t, result.IsFinal)
	}

	final := s.ProcessChunk([]byte(`{"candidates":[{"content":{"parts":[{"text":"!"}]},"finishReason":"STOP","index":0}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":3}}`))
	assert.True(t, final.IsFinal)

	out := s.ToProviderResponse()
	assert.Equal(t, "resp-1", gjson.GetBytes(out, "responseId").String())
	assert.Equal(t, "Hello!", gjson.GetBytes(out, "candidates.0.content.parts.0.text").String())
	assert.Equal(t, "STOP", gjson.GetBytes(out, "candidates.0.finishReason").String())
	assert.Equal(t, int64(13), gjson.GetBytes(out, "usageMetadata.totalTokenCount").Int())
}

func TestGeminiStream_FunctionCallArrivesWhole(t *testing.T) {
	s := NewGeminiStreamAdapter()

	chunk := `{"candidates":[{"content":{"parts":[{"functionCall":{"name":"get_weather","args":{"location":"NY"}}}]},"index":0}]}`
	result := s.ProcessChunk([]byte(chunk))

	assert.True(t, result.IsToolCall)
	require.Len(t, s.RawToolCallEvents(), 1)
	assert.Equal(t, "data: "+chunk+"\n\n", s.RawToolCallEvents()[0])

	out := s.ToProviderResponse()
	call := gjson.GetBytes(out, "candidates.0.content.parts.0.functionCall")
	assert.Equal(t, "get_weather", call.Get("name").String())
	assert.Equal(t, "NY", call.Get("args.location").String())
}

func TestGeminiStream_PromptOnlyUsageIsNotFinal(t *testing.T) {
	s := NewGeminiStreamAdapter()

	// early chunks may carry promptTokenCount alone; only the complete
	// usage metadata terminates
	result := s.ProcessChunk([]byte(`{"candidates":[{"content":{"parts":[{"text":"x"}]}}],"usageMetadata":{"promptTokenCount":10}}`))
	assert.False(t, result.IsFinal)
}

// =============================================================================
// SERVER-INJECTED FRAMES
// =============================================================================

func TestGeminiStream_InjectedFrames(t *testing.T) {
	s := NewGeminiStreamAdapter()

	delta := s.FormatTextDeltaSSE("injected")
	assert.Contains(t, delta, `"text":"injected"`)
	assert.NotContains(t, delta, "finishReason")

	complete := s.FormatCompleteTextSSE("full")
	assert.Contains(t, complete, `"finishReason":"STOP"`)

	// the native wire has no terminal sentinel
	assert.Equal(t, "", s.FormatEndSSE())
}
