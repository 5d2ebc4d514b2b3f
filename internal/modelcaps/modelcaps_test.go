package modelcaps

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor_KnownFamilies(t *testing.T) {
	table := NewTable(nil)

	tests := []struct {
		model string
		want  Capability
	}{
		{"gpt-4o-2024-08-06", Vision},
		{"o3-2025-04-16", Reasoning},
		{"claude-haiku-4-5", Fast},
		{"gemini-2.5-flash", Fast},
		{"MiniMax-M2", Reasoning},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.True(t, table.Has(tt.model, tt.want))
		})
	}
}

func TestFor_Unknown(t *testing.T) {
	table := NewTable(nil)

	assert.Empty(t, table.For("totally-custom-model"))
}

func TestFor_Deduplicates(t *testing.T) {
	table := NewTable(nil)

	// matches both "gemini" and "flash" rows; each capability once
	caps := table.For("gemini-2.5-flash")
	seen := map[Capability]int{}
	for _, c := range caps {
		seen[c]++
	}
	for c, n := range seen {
		assert.Equal(t, 1, n, "capability %s duplicated", c)
	}
}

func TestNewTable_Extras(t *testing.T) {
	table := NewTable(map[string][]string{
		"my-internal-model": {"reasoning", "fast"},
	})

	assert.True(t, table.Has("my-internal-model-v2", Reasoning))
	assert.True(t, table.Has("my-internal-model-v2", Fast))
}
