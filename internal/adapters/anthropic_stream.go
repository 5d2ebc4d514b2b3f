package adapters

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/prism-gw/prism/internal/canonical"
)

// AnthropicStreamAdapter accumulates Messages API SSE events into one
// synthesized complete response.
//
// The Anthropic stream is event-framed: message_start carries id/model and
// input token usage, content_block_start/delta/stop carry text, thinking and
// tool_use deltas correlated by block index, message_delta carries the stop
// reason and output token usage, and message_stop terminates. Frames are
// reconstructed for pass-through from each event's type field.
type AnthropicStreamAdapter struct {
	responseID string
	model      string
	text       strings.Builder
	reasoning  strings.Builder

	toolCalls []*toolCallAccumulator
	toolIndex map[int]int

	rawToolCallEvents []string

	inputTokens  int
	outputTokens int
	usageSeen    bool
	stopReason   string

	startTime      time.Time
	firstChunkTime time.Time
}

// NewAnthropicStreamAdapter creates a fresh accumulator for one stream.
func NewAnthropicStreamAdapter() *AnthropicStreamAdapter {
	return &AnthropicStreamAdapter{
		toolIndex: make(map[int]int),
		startTime: time.Now(),
	}
}

func (s *AnthropicStreamAdapter) Provider() string { return ProviderAnthropic }

func (s *AnthropicStreamAdapter) ProcessChunk(raw []byte) ChunkResult {
	if s.firstChunkTime.IsZero() {
		s.firstChunkTime = time.Now()
	}

	event := gjson.ParseBytes(raw)
	eventType := event.Get("type").String()
	frame := formatEventSSE(eventType, string(raw))
	result := ChunkResult{SSE: frame}

	switch eventType {
	case "message_start":
		s.responseID = event.Get("message.id").String()
		s.model = event.Get("message.model").String()
		s.inputTokens = int(event.Get("message.usage.input_tokens").Int())

	case "content_block_start":
		block := event.Get("content_block")
		if block.Get("type").String() == "tool_use" {
			idx := int(event.Get("index").Int())
			pos, seen := s.toolIndex[idx]
			if !seen {
				pos = len(s.toolCalls)
				s.toolCalls = append(s.toolCalls, &toolCallAccumulator{Index: idx})
				s.toolIndex[idx] = pos
			}
			acc := s.toolCalls[pos]
			if acc.ID == "" {
				acc.ID = block.Get("id").String()
			}
			if acc.Name == "" {
				acc.Name = block.Get("name").String()
			}
			s.rawToolCallEvents = append(s.rawToolCallEvents, frame)
			result.IsToolCall = true
		}

	case "content_block_delta":
		delta := event.Get("delta")
		switch delta.Get("type").String() {
		case "text_delta":
			s.text.WriteString(delta.Get("text").String())
		case "thinking_delta":
			s.reasoning.WriteString(delta.Get("thinking").String())
		case "input_json_delta":
			idx := int(event.Get("index").Int())
			if pos, ok := s.toolIndex[idx]; ok {
				s.toolCalls[pos].Arguments.WriteString(delta.Get("partial_json").String())
			}
			s.rawToolCallEvents = append(s.rawToolCallEvents, frame)
			result.IsToolCall = true
		}

	case "content_block_stop":
		idx := int(event.Get("index").Int())
		if _, ok := s.toolIndex[idx]; ok {
			s.rawToolCallEvents = append(s.rawToolCallEvents, frame)
			result.IsToolCall = true
		}

	case "message_delta":
		if stop := event.Get("delta.stop_reason"); stop.Type == gjson.String {
			s.stopReason = stop.String()
		}
		if usage := event.Get("usage"); usage.IsObject() {
			s.outputTokens = int(usage.Get("output_tokens").Int())
			s.usageSeen = true
		}

	case "message_stop":
		result.IsFinal = s.usageSeen
		// The frame itself ends the stream; no extra terminator follows.
		result.Terminal = true
	}

	return result
}

// anthropicMessage is the native shape synthesized at stream end.
type anthropicMessage struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Role       string           `json:"role"`
	Model      string           `json:"model"`
	Content    []map[string]any `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      anthropicUsage   `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (s *AnthropicStreamAdapter) ToProviderResponse() []byte {
	var content []map[string]any
	if s.reasoning.Len() > 0 {
		content = append(content, map[string]any{
			"type":     "thinking",
			"thinking": s.reasoning.String(),
		})
	}
	if s.text.Len() > 0 {
		content = append(content, map[string]any{
			"type": "text",
			"text": s.text.String(),
		})
	}
	for _, acc := range s.toolCalls {
		// The native wire requires input as an object; accumulated partial
		// JSON that does not parse degrades to an empty object.
		content = append(content, map[string]any{
			"type":  "tool_use",
			"id":    acc.ID,
			"name":  acc.Name,
			"input": canonical.ParseArguments(acc.Arguments.String()),
		})
	}
	if content == nil {
		content = []map[string]any{}
	}

	stop := s.stopReason
	if stop == "" {
		stop = "end_turn"
	}

	return marshalOrEmptyObject(anthropicMessage{
		ID:         s.responseID,
		Type:       "message",
		Role:       "assistant",
		Model:      s.model,
		Content:    content,
		StopReason: stop,
		Usage:      anthropicUsage{InputTokens: s.inputTokens, OutputTokens: s.outputTokens},
	})
}

func (s *AnthropicStreamAdapter) RawToolCallEvents() []string {
	return s.rawToolCallEvents
}

func (s *AnthropicStreamAdapter) SSEHeaders() map[string]string { return SSEHeaders() }

// FormatTextDeltaSSE frames server-injected text as a text delta on block 0.
func (s *AnthropicStreamAdapter) FormatTextDeltaSSE(text string) string {
	payload, err := json.Marshal(map[string]any{
		"type":  "content_block_delta",
		"index": 0,
		"delta": map[string]any{"type": "text_delta", "text": text},
	})
	if err != nil {
		return ""
	}
	return formatEventSSE("content_block_delta", string(payload))
}

// FormatCompleteTextSSE frames server-injected text as a full text block:
// start, delta and stop events.
func (s *AnthropicStreamAdapter) FormatCompleteTextSSE(text string) string {
	start, err := json.Marshal(map[string]any{
		"type":          "content_block_start",
		"index":         0,
		"content_block": map[string]any{"type": "text", "text": ""},
	})
	if err != nil {
		return ""
	}
	return formatEventSSE("content_block_start", string(start)) +
		s.FormatTextDeltaSSE(text) +
		formatEventSSE("content_block_stop", `{"type":"content_block_stop","index":0}`)
}

// FormatEndSSE terminates with the native message_stop event. Anthropic
// clients do not understand the [DONE] sentinel.
func (s *AnthropicStreamAdapter) FormatEndSSE() string {
	return formatEventSSE("message_stop", `{"type":"message_stop"}`)
}

func (s *AnthropicStreamAdapter) FirstChunkLatency() time.Duration {
	if s.firstChunkTime.IsZero() {
		return 0
	}
	return s.firstChunkTime.Sub(s.startTime)
}

var _ StreamAdapter = (*AnthropicStreamAdapter)(nil)
