// Package canonical defines the provider-independent representation of a
// chat interaction: messages, tool calls, tool results, tool definitions and
// usage. Adapters translate provider wire formats to and from these types;
// everything above the adapter layer speaks only canonical.
package canonical

import "encoding/json"

// Role is a canonical message role. Provider-specific roles map onto these;
// unrecognized roles pass through untouched so unknown wire extensions
// survive a round trip.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleDeveloper Role = "developer"
	RoleFunction  Role = "function"
)

// UnknownToolName is substituted when a tool result cannot be correlated to
// any preceding tool call. Downstream consumers must handle it without
// failing the request.
const UnknownToolName = "unknown_tool"

// Message is one turn of a conversation in canonical form. A single native
// message may carry text, tool calls and tool results at once (Anthropic
// content blocks); all three slots are populated independently.
type Message struct {
	Role        Role
	Content     string
	Reasoning   string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolCall is an assistant's request to invoke a tool. Arguments are always
// a materialized object; malformed wire arguments become an empty map with
// ID and Name preserved so correlation still works.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult is the outcome of one tool invocation. Content holds parsed
// JSON when the wire content parses, else the raw string.
type ToolResult struct {
	ID      string
	Name    string
	Content any
	IsError bool
}

// ToolDefinition declares one callable tool.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Usage is the canonical token accounting. Missing provider fields default
// to zero.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// TotalTokens returns the combined token count.
func (u Usage) TotalTokens() int { return u.InputTokens + u.OutputTokens }

// TryParseJSON attempts to parse raw as JSON. On success it returns the
// materialized value and true; on failure it returns the raw string
// unchanged and false. Callers use the flag to decide whether content is
// structured.
func TryParseJSON(raw string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw, false
	}
	return v, true
}

// ParseArguments parses a tool-call argument string into a map. Anything
// that is not a JSON object, including malformed or truncated JSON, yields
// an empty map rather than an error; argument loss must never fail the
// surrounding request.
func ParseArguments(raw string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}
