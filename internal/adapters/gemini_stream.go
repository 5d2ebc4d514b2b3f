package adapters

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/prism-gw/prism/internal/canonical"
)

// GeminiStreamAdapter accumulates streamGenerateContent SSE chunks.
//
// Each chunk is a partial GenerateContentResponse. Text arrives as
// incremental parts; function calls arrive whole in a single chunk, so there
// is no cross-chunk argument accumulation; each functionCall part allocates
// one arena entry with its full argument object. The final chunk carries
// finishReason and the complete usageMetadata.
type GeminiStreamAdapter struct {
	responseID string
	model      string
	text       strings.Builder

	toolCalls         []*toolCallAccumulator
	rawToolCallEvents []string

	usage      *canonical.Usage
	stopReason string

	startTime      time.Time
	firstChunkTime time.Time
}

// NewGeminiStreamAdapter creates a fresh accumulator for one stream.
func NewGeminiStreamAdapter() *GeminiStreamAdapter {
	return &GeminiStreamAdapter{startTime: time.Now()}
}

func (s *GeminiStreamAdapter) Provider() string { return ProviderGemini }

func (s *GeminiStreamAdapter) ProcessChunk(raw []byte) ChunkResult {
	if s.firstChunkTime.IsZero() {
		s.firstChunkTime = time.Now()
	}

	chunk := gjson.ParseBytes(raw)

	if id := chunk.Get("responseId"); id.Type == gjson.String && id.String() != "" {
		s.responseID = id.String()
	}
	if model := chunk.Get("modelVersion"); model.Type == gjson.String && model.String() != "" {
		s.model = model.String()
	}

	// The terminal chunk carries complete usage metadata.
	if usage := chunk.Get("usageMetadata"); usage.IsObject() && usage.Get("candidatesTokenCount").Exists() {
		s.usage = &canonical.Usage{
			InputTokens:  int(usage.Get("promptTokenCount").Int()),
			OutputTokens: int(usage.Get("candidatesTokenCount").Int()),
		}
	}

	candidates := chunk.Get("candidates").Array()
	if len(candidates) == 0 {
		return ChunkResult{IsFinal: s.usage != nil}
	}

	candidate := candidates[0]
	result := ChunkResult{IsFinal: s.usage != nil}

	if finish := candidate.Get("finishReason"); finish.Type == gjson.String && finish.String() != "" {
		s.stopReason = finish.String()
	}

	hasToolCall := false
	for _, part := range candidate.Get("content.parts").Array() {
		switch {
		case part.Get("text").Exists():
			s.text.WriteString(part.Get("text").String())
		case part.Get("functionCall").Exists():
			call := part.Get("functionCall")
			args, err := json.Marshal(call.Get("args").Value())
			if err != nil {
				args = []byte("{}")
			}
			acc := &toolCallAccumulator{
				Index: len(s.toolCalls),
				ID:    call.Get("name").String(),
				Name:  call.Get("name").String(),
			}
			acc.Arguments.WriteString(string(args))
			s.toolCalls = append(s.toolCalls, acc)
			hasToolCall = true
		}
	}

	frame := formatSSE(string(raw))
	result.SSE = frame
	if hasToolCall {
		s.rawToolCallEvents = append(s.rawToolCallEvents, frame)
		result.IsToolCall = true
	}
	return result
}

func (s *GeminiStreamAdapter) ToProviderResponse() []byte {
	var parts []map[string]any
	if s.text.Len() > 0 {
		parts = append(parts, map[string]any{"text": s.text.String()})
	}
	for _, acc := range s.toolCalls {
		parts = append(parts, map[string]any{
			"functionCall": map[string]any{
				"name": acc.Name,
				"args": canonical.ParseArguments(acc.Arguments.String()),
			},
		})
	}
	if parts == nil {
		parts = []map[string]any{}
	}

	finish := s.stopReason
	if finish == "" {
		finish = "STOP"
	}

	var usage canonical.Usage
	if s.usage != nil {
		usage = *s.usage
	}

	return marshalOrEmptyObject(map[string]any{
		"responseId":   s.responseID,
		"modelVersion": s.model,
		"candidates": []map[string]any{{
			"content":      map[string]any{"role": "model", "parts": parts},
			"finishReason": finish,
			"index":        0,
		}},
		"usageMetadata": map[string]any{
			"promptTokenCount":     usage.InputTokens,
			"candidatesTokenCount": usage.OutputTokens,
			"totalTokenCount":      usage.InputTokens + usage.OutputTokens,
		},
	})
}

func (s *GeminiStreamAdapter) RawToolCallEvents() []string {
	return s.rawToolCallEvents
}

func (s *GeminiStreamAdapter) SSEHeaders() map[string]string { return SSEHeaders() }

func (s *GeminiStreamAdapter) syntheticChunk(text, finish string) string {
	candidate := map[string]any{
		"content": map[string]any{"role": "model", "parts": []map[string]string{{"text": text}}},
		"index":   0,
	}
	if finish != "" {
		candidate["finishReason"] = finish
	}
	payload, err := json.Marshal(map[string]any{
		"responseId":   s.responseID,
		"modelVersion": s.model,
		"candidates":   []map[string]any{candidate},
	})
	if err != nil {
		return ""
	}
	return formatSSE(string(payload))
}

func (s *GeminiStreamAdapter) FormatTextDeltaSSE(text string) string {
	return s.syntheticChunk(text, "")
}

func (s *GeminiStreamAdapter) FormatCompleteTextSSE(text string) string {
	return s.syntheticChunk(text, "STOP")
}

// FormatEndSSE returns nothing: the Gemini SSE stream terminates by
// connection close, with no sentinel frame in the native wire.
func (s *GeminiStreamAdapter) FormatEndSSE() string { return "" }

func (s *GeminiStreamAdapter) FirstChunkLatency() time.Duration {
	if s.firstChunkTime.IsZero() {
		return 0
	}
	return s.firstChunkTime.Sub(s.startTime)
}

var _ StreamAdapter = (*GeminiStreamAdapter)(nil)
