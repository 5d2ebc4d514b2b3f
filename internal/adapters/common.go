package adapters

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/prism-gw/prism/internal/canonical"
)

// =============================================================================
// TOOL-CALL / TOOL-RESULT CORRELATION
// =============================================================================

// ResolveToolName finds the tool name for a tool result by scanning messages
// backward from fromIdx. The first assistant message carrying a tool-call
// list is checked for a matching id; on a miss the scan continues past it.
// Tool results always follow their originating call, and the backward scan
// selects the nearest preceding occurrence, which keeps repeated tool names
// across a long conversation correct. Returns "" when nothing matches.
func ResolveToolName(msgs []canonical.Message, fromIdx int, toolCallID string) string {
	if fromIdx > len(msgs) {
		fromIdx = len(msgs)
	}
	for i := fromIdx - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role != canonical.RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}
		for _, tc := range m.ToolCalls {
			if tc.ID == toolCallID {
				return tc.Name
			}
		}
	}
	return ""
}

// resolveToolNameOrPlaceholder substitutes the placeholder name when the
// correlation fails; downstream canonicalization must not fail on it.
func resolveToolNameOrPlaceholder(msgs []canonical.Message, fromIdx int, toolCallID string) string {
	if name := ResolveToolName(msgs, fromIdx, toolCallID); name != "" {
		return name
	}
	return canonical.UnknownToolName
}

// =============================================================================
// STAGED REQUEST MUTATIONS
// =============================================================================

// requestBase holds the immutable original body plus the staged patch set
// shared by all request adapters. ToProviderRequest in each provider folds
// the patches over a copy of the original; neither the original nor a
// previously returned body is ever mutated.
type requestBase struct {
	provider          string
	original          []byte
	modelOverride     string
	toolResultUpdates map[string]string
}

func newRequestBase(provider string, body []byte) requestBase {
	return requestBase{provider: provider, original: body}
}

func (r *requestBase) Provider() string { return r.provider }

func (r *requestBase) OriginalRequest() []byte { return r.original }

func (r *requestBase) SetModel(model string) { r.modelOverride = model }

func (r *requestBase) UpdateToolResult(toolCallID, content string) {
	if r.toolResultUpdates == nil {
		r.toolResultUpdates = make(map[string]string)
	}
	r.toolResultUpdates[toolCallID] = content
}

// copyBody returns a private copy of the original for patch folding.
func (r *requestBase) copyBody() []byte {
	return append([]byte(nil), r.original...)
}

// =============================================================================
// CONTENT HELPERS
// =============================================================================

// textContent flattens an OpenAI-style content value: a plain string, or an
// array of {"type":"text","text":...} parts joined by newlines. Anything
// else renders empty.
func textContent(res gjson.Result) string {
	switch {
	case res.Type == gjson.String:
		return res.String()
	case res.IsArray():
		var b strings.Builder
		for _, part := range res.Array() {
			text := part.Get("text")
			if !text.Exists() || text.Type != gjson.String {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(text.String())
		}
		return b.String()
	default:
		return ""
	}
}

// parseToolResultContent applies the best-effort parse-or-raw rule.
func parseToolResultContent(raw string) any {
	v, _ := canonical.TryParseJSON(raw)
	return v
}

// schemaMap materializes a JSON-schema value into a map, empty on anything
// unexpected.
func schemaMap(res gjson.Result) map[string]any {
	if m, ok := res.Value().(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
