package adapters

import (
	"context"

	"github.com/prism-gw/prism/internal/toon"
)

// ApplyToonCompression rewrites all of a request's tool-result contents to
// token-oriented notation, staging the replacements on the adapter and
// returning the measured savings. One implementation serves every provider
// through the ToolResults/UpdateToolResult surface.
//
// Compression is opportunistic: tool results whose content does not parse as
// JSON are left untouched and excluded from the token totals. A Result with
// nil fields means nothing was eligible, not zero benefit.
func ApplyToonCompression(ctx context.Context, ra RequestAdapter, c *toon.Compressor, model string) (toon.Result, error) {
	rewrites, res, err := c.Compress(ctx, ra.Provider(), model, ra.ToolResults())
	if err != nil {
		return toon.Result{}, err
	}
	for _, rw := range rewrites {
		ra.UpdateToolResult(rw.ID, rw.Content)
	}
	return res, nil
}
