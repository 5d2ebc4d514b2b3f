package adapters

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/prism-gw/prism/internal/canonical"
)

// OpenAIStreamAdapter accumulates Chat Completions SSE chunks into one
// synthesized complete response.
//
// The implicit state machine is AwaitingFirstChunk → Accumulating → Final.
// Terminal transition happens when a usage payload is observed: with
// stream_options.include_usage requested, providers emit a terminating chunk
// carrying usage and no choices; that chunk is the normal end of stream,
// not an error. A finish_reason alone never terminates, since finish_reason
// and usage may arrive in separate chunks.
type OpenAIStreamAdapter struct {
	provider string

	responseID string
	model      string
	created    int64
	text       strings.Builder
	reasoning  strings.Builder

	// Ordered tool-call arena plus provider-stream-index → position map.
	// Supports out-of-order index first-sighting without reordering
	// ambiguity.
	toolCalls []*toolCallAccumulator
	toolIndex map[int]int

	rawToolCallEvents []string

	usage      *canonical.Usage
	stopReason string

	startTime      time.Time
	firstChunkTime time.Time
}

// toolCallAccumulator collects one logical tool call across chunks.
// Arguments concatenate in chunk order; id and name are set on first
// sighting and never replaced.
type toolCallAccumulator struct {
	Index     int
	ID        string
	Name      string
	Arguments strings.Builder
}

// NewOpenAIStreamAdapter creates a fresh accumulator for one stream.
func NewOpenAIStreamAdapter() *OpenAIStreamAdapter {
	return newOpenAICompatibleStreamAdapter(ProviderOpenAI)
}

func newOpenAICompatibleStreamAdapter(provider string) *OpenAIStreamAdapter {
	return &OpenAIStreamAdapter{
		provider:  provider,
		toolIndex: make(map[int]int),
		startTime: time.Now(),
	}
}

func (s *OpenAIStreamAdapter) Provider() string { return s.provider }

// ProcessChunk consumes one chunk's JSON payload.
func (s *OpenAIStreamAdapter) ProcessChunk(raw []byte) ChunkResult {
	if s.firstChunkTime.IsZero() {
		s.firstChunkTime = time.Now()
	}

	chunk := gjson.ParseBytes(raw)

	// Providers may only populate id/model on later chunks; always refresh.
	if id := chunk.Get("id"); id.Type == gjson.String && id.String() != "" {
		s.responseID = id.String()
	}
	if model := chunk.Get("model"); model.Type == gjson.String && model.String() != "" {
		s.model = model.String()
	}
	// created comes off the wire so synthesis never depends on the local
	// clock; identical chunk sequences synthesize identical responses.
	if created := chunk.Get("created").Int(); created > 0 {
		s.created = created
	}

	// Usage is the final-chunk signal.
	if usage := chunk.Get("usage"); usage.IsObject() {
		s.usage = &canonical.Usage{
			InputTokens:  int(usage.Get("prompt_tokens").Int()),
			OutputTokens: int(usage.Get("completion_tokens").Int()),
		}
	}

	choices := chunk.Get("choices").Array()
	if len(choices) == 0 {
		// Normal termination chunk: no choices, usage present.
		return ChunkResult{IsFinal: s.usage != nil}
	}

	choice := choices[0]
	delta := choice.Get("delta")
	result := ChunkResult{IsFinal: s.usage != nil}

	if finish := choice.Get("finish_reason"); finish.Type == gjson.String && finish.String() != "" {
		s.stopReason = finish.String()
	}

	if tcs := delta.Get("tool_calls"); tcs.IsArray() {
		for _, tc := range tcs.Array() {
			s.accumulateToolCall(tc)
		}
		// Tool-call chunks are forwarded verbatim, not re-derived; clients
		// may depend on exact upstream formatting.
		frame := formatSSE(string(raw))
		s.rawToolCallEvents = append(s.rawToolCallEvents, frame)
		result.SSE = frame
		result.IsToolCall = true
		return result
	}

	forwarded := false
	if content := delta.Get("content"); content.Type == gjson.String {
		s.text.WriteString(content.String())
		result.SSE = formatSSE(string(raw))
		forwarded = true
	}

	// Reasoning deltas accumulate separately; the chunk is still forwarded
	// unless a text delta already claimed the forward slot.
	for _, key := range []string{"reasoning_content", "reasoning"} {
		if r := delta.Get(key); r.Type == gjson.String && r.String() != "" {
			s.reasoning.WriteString(r.String())
			if !forwarded {
				result.SSE = formatSSE(string(raw))
				forwarded = true
			}
			break
		}
	}

	if !forwarded && (choice.Get("finish_reason").Type == gjson.String || delta.Get("role").Exists()) {
		// finish_reason and role-priming chunks pass through untouched.
		result.SSE = formatSSE(string(raw))
	}
	return result
}

// accumulateToolCall merges one tool-call delta into the arena. The index
// field correlates deltas of the same logical call across chunks.
func (s *OpenAIStreamAdapter) accumulateToolCall(tc gjson.Result) {
	idx := int(tc.Get("index").Int())

	pos, seen := s.toolIndex[idx]
	if !seen {
		pos = len(s.toolCalls)
		s.toolCalls = append(s.toolCalls, &toolCallAccumulator{Index: idx})
		s.toolIndex[idx] = pos
	}
	acc := s.toolCalls[pos]

	if acc.ID == "" {
		acc.ID = tc.Get("id").String()
	}
	if acc.Name == "" {
		acc.Name = tc.Get("function.name").String()
	}
	// Append, never replace: arguments arrive as ordered fragments.
	acc.Arguments.WriteString(tc.Get("function.arguments").String())
}

// ToProviderResponse synthesizes the complete Chat Completions response the
// accumulated stream represents. Downstream accounting operates only on
// complete responses.
func (s *OpenAIStreamAdapter) ToProviderResponse() []byte {
	msg := openAIMessage{Role: "assistant"}
	if s.text.Len() > 0 {
		content := s.text.String()
		msg.Content = &content
	}
	msg.ReasoningContent = s.reasoning.String()

	for _, acc := range s.toolCalls {
		msg.ToolCalls = append(msg.ToolCalls, openAIToolCall{
			ID:   acc.ID,
			Type: "function",
			Function: openAIFunction{
				Name:      acc.Name,
				Arguments: acc.Arguments.String(),
			},
		})
	}

	finish := s.stopReason
	if finish == "" {
		finish = "stop"
	}

	var usage openAIUsage
	if s.usage != nil {
		usage = openAIUsage{
			PromptTokens:     s.usage.InputTokens,
			CompletionTokens: s.usage.OutputTokens,
			TotalTokens:      s.usage.InputTokens + s.usage.OutputTokens,
		}
	}

	return marshalOrEmptyObject(openAIResponse{
		ID:      s.responseID,
		Object:  "chat.completion",
		Created: s.created,
		Model:   s.model,
		Choices: []openAIChoice{{Index: 0, Message: msg, FinishReason: finish}},
		Usage:   usage,
	})
}

func (s *OpenAIStreamAdapter) RawToolCallEvents() []string {
	return s.rawToolCallEvents
}

func (s *OpenAIStreamAdapter) SSEHeaders() map[string]string { return SSEHeaders() }

// chatCompletionChunk is a synthetic chunk for server-injected text.
type chatCompletionChunk struct {
	ID      string            `json:"id"`
	Object  string            `json:"object"`
	Created int64             `json:"created"`
	Model   string            `json:"model"`
	Choices []chatChunkChoice `json:"choices"`
}

type chatChunkChoice struct {
	Index        int            `json:"index"`
	Delta        chatChunkDelta `json:"delta"`
	FinishReason *string        `json:"finish_reason"`
}

type chatChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

func (s *OpenAIStreamAdapter) syntheticChunk(text string, finish *string) string {
	// Injected frames carry the stream's own created stamp so they are
	// indistinguishable from upstream chunks; wall clock only before any
	// chunk arrived.
	created := s.created
	if created == 0 {
		created = s.startTime.Unix()
	}
	chunk := chatCompletionChunk{
		ID:      s.responseID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   s.model,
		Choices: []chatChunkChoice{{Delta: chatChunkDelta{Content: text}, FinishReason: finish}},
	}
	out, err := json.Marshal(chunk)
	if err != nil {
		return ""
	}
	return formatSSE(string(out))
}

// FormatTextDeltaSSE frames server-injected incremental text.
func (s *OpenAIStreamAdapter) FormatTextDeltaSSE(text string) string {
	return s.syntheticChunk(text, nil)
}

// FormatCompleteTextSSE frames server-injected text as a terminal chunk.
func (s *OpenAIStreamAdapter) FormatCompleteTextSSE(text string) string {
	stop := "stop"
	return s.syntheticChunk(text, &stop)
}

func (s *OpenAIStreamAdapter) FormatEndSSE() string { return sseDone }

func (s *OpenAIStreamAdapter) FirstChunkLatency() time.Duration {
	if s.firstChunkTime.IsZero() {
		return 0
	}
	return s.firstChunkTime.Sub(s.startTime)
}

var _ StreamAdapter = (*OpenAIStreamAdapter)(nil)
