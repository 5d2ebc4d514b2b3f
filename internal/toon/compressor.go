package toon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prism-gw/prism/internal/canonical"
	"github.com/prism-gw/prism/internal/pricing"
	"github.com/prism-gw/prism/internal/tokenizer"
)

// Result reports compression savings across one request's tool results. Nil
// fields mean no eligible content was found, which callers must distinguish
// from an attempt that saved nothing.
type Result struct {
	TokensBefore *int
	TokensAfter  *int
	CostSavings  *float64
}

// Saved returns net tokens saved, zero when compression was not attempted.
func (r Result) Saved() int {
	if r.TokensBefore == nil || r.TokensAfter == nil {
		return 0
	}
	return *r.TokensBefore - *r.TokensAfter
}

// Rewrite is one staged tool-result content replacement, keyed by the tool
// call id it correlates to.
type Rewrite struct {
	ID      string
	Content string
}

// Compressor rewrites JSON tool-result contents to token-oriented notation
// and accounts the savings.
type Compressor struct {
	Prices pricing.Lookup

	// Tokenizers resolves the tokenizer per provider; defaults to
	// tokenizer.ForProvider.
	Tokenizers func(provider string) (tokenizer.Tokenizer, error)
}

func (c *Compressor) tokenizerFor(provider string) (tokenizer.Tokenizer, error) {
	if c.Tokenizers != nil {
		return c.Tokenizers(provider)
	}
	return tokenizer.ForProvider(provider)
}

// Compress examines every tool result and produces content rewrites for the
// ones carrying parseable JSON. Non-JSON content is skipped entirely: no
// rewrite, no contribution to the token totals. Compression is opportunistic
// and never destructive.
func (c *Compressor) Compress(ctx context.Context, provider, model string, results []canonical.ToolResult) ([]Rewrite, Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, Result{}, err
	}

	tok, err := c.tokenizerFor(provider)
	if err != nil {
		return nil, Result{}, fmt.Errorf("tokenizer for %s: %w", provider, err)
	}

	var (
		rewrites  []Rewrite
		before    int
		after     int
		attempted bool
	)

	for _, tr := range results {
		original, value, ok := eligibleContent(tr.Content)
		if !ok {
			continue
		}
		encoded := Encode(value)

		attempted = true
		before += tok.CountTokens(original)
		after += tok.CountTokens(encoded)
		rewrites = append(rewrites, Rewrite{ID: tr.ID, Content: encoded})
	}

	if !attempted {
		return nil, Result{}, nil
	}

	res := Result{TokensBefore: &before, TokensAfter: &after}
	if saved := before - after; saved > 0 && c.Prices != nil {
		price, err := c.Prices.FindByModel(model)
		if err != nil {
			return nil, Result{}, fmt.Errorf("price for %s: %w", model, err)
		}
		if price != nil {
			savings := float64(saved) * price.InputPerMillion / 1e6
			res.CostSavings = &savings
		}
	}
	return rewrites, res, nil
}

// eligibleContent decides whether a tool-result content value can be
// compressed. String content is unwrapped from any text-block envelope and
// must parse as structured JSON; already-materialized maps and arrays
// qualify directly. The returned original is the string form used for the
// before-count.
func eligibleContent(content any) (original string, value any, ok bool) {
	switch v := content.(type) {
	case string:
		unwrapped := unwrapEnvelope(v)
		parsed, isJSON := canonical.TryParseJSON(unwrapped)
		if !isJSON || !worthEncoding(parsed) {
			return "", nil, false
		}
		return unwrapped, parsed, true
	case map[string]any, []any:
		if !worthEncoding(v) {
			return "", nil, false
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return "", nil, false
		}
		return string(raw), v, true
	default:
		return "", nil, false
	}
}

// worthEncoding rejects bare scalars, which gain nothing from re-encoding.
func worthEncoding(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// unwrapEnvelope strips the single-text-block envelope some providers wrap
// tool output in, [{"type":"text","text":"..."}]. Anything else passes
// through unchanged.
func unwrapEnvelope(raw string) string {
	var blocks []map[string]any
	if err := json.Unmarshal([]byte(raw), &blocks); err != nil || len(blocks) != 1 {
		return raw
	}
	if blocks[0]["type"] != "text" {
		return raw
	}
	if text, ok := blocks[0]["text"].(string); ok {
		return text
	}
	return raw
}
