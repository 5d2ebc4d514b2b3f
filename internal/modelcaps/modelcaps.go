// Package modelcaps tags models with capabilities using a substring
// heuristic over model IDs. This is configuration data, not a protocol
// contract; patterns are best-effort and extendable.
package modelcaps

import "strings"

// Capability is one model capability tag.
type Capability string

const (
	Vision    Capability = "vision"
	Reasoning Capability = "reasoning"
	Fast      Capability = "fast"
	Docs      Capability = "docs"
)

type pattern struct {
	substr string
	caps   []Capability
}

// defaultPatterns map model-ID substrings to capabilities. Order matters
// only for readability; all matching rows contribute.
var defaultPatterns = []pattern{
	{"gpt-4o", []Capability{Vision, Docs}},
	{"gpt-4.1", []Capability{Vision, Docs}},
	{"o3", []Capability{Reasoning}},
	{"o4-mini", []Capability{Reasoning, Fast}},
	{"-mini", []Capability{Fast}},
	{"-nano", []Capability{Fast}},
	{"claude", []Capability{Vision, Docs}},
	{"opus", []Capability{Reasoning}},
	{"haiku", []Capability{Fast}},
	{"thinking", []Capability{Reasoning}},
	{"gemini", []Capability{Vision, Docs}},
	{"flash", []Capability{Fast}},
	{"MiniMax-M", []Capability{Reasoning}},
	{"llava", []Capability{Vision}},
	{"deepseek-r1", []Capability{Reasoning}},
}

// Table resolves model capabilities. Extra rows extend the defaults.
type Table struct {
	patterns []pattern
}

// NewTable builds a table from the default patterns plus extras, where
// extras map a substring to capability names.
func NewTable(extras map[string][]string) *Table {
	t := &Table{patterns: defaultPatterns}
	for substr, names := range extras {
		caps := make([]Capability, 0, len(names))
		for _, n := range names {
			caps = append(caps, Capability(n))
		}
		t.patterns = append(t.patterns, pattern{substr: substr, caps: caps})
	}
	return t
}

// For returns the deduplicated capability set for a model ID.
func (t *Table) For(model string) []Capability {
	lower := strings.ToLower(model)
	seen := make(map[Capability]bool)
	var caps []Capability
	for _, p := range t.patterns {
		if !strings.Contains(lower, strings.ToLower(p.substr)) {
			continue
		}
		for _, c := range p.caps {
			if !seen[c] {
				seen[c] = true
				caps = append(caps, c)
			}
		}
	}
	return caps
}

// Has reports whether a model carries a capability.
func (t *Table) Has(model string, c Capability) bool {
	for _, got := range t.For(model) {
		if got == c {
			return true
		}
	}
	return false
}
