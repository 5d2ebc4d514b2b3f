package adapters

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prism-gw/prism/internal/upstream"
)

// =============================================================================
// ERROR NORMALIZATION
// =============================================================================

func TestExtractErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "nested error envelope",
			body: `{"error":{"message":"Rate limit exceeded","type":"rate_limit_error"}}`,
			want: "Rate limit exceeded",
		},
		{
			name: "gemini batch array envelope",
			body: `[{"error":{"message":"API key not valid","code":400}}]`,
			want: "API key not valid",
		},
		{
			name: "top-level message",
			body: `{"message":"model not found"}`,
			want: "model not found",
		},
		{
			name: "plain error string field",
			body: `{"error":"something broke"}`,
			want: "something broke",
		},
		{
			name: "non-json body passes through",
			body: `502 Bad Gateway`,
			want: "502 Bad Gateway",
		},
		{
			name: "unrecognized json falls back to raw",
			body: `{"detail":"nope"}`,
			want: `{"detail":"nope"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &upstream.APIError{StatusCode: 400, Body: []byte(tt.body)}
			assert.Equal(t, tt.want, ExtractErrorMessage(err))
		})
	}
}

func TestExtractErrorMessage_PlainGoError(t *testing.T) {
	assert.Equal(t, "connection refused", ExtractErrorMessage(errors.New("connection refused")))
}

func TestExtractErrorMessage_EnvelopeInErrorText(t *testing.T) {
	err := errors.New(`{"error":{"message":"quota exhausted"}}`)
	assert.Equal(t, "quota exhausted", ExtractErrorMessage(err))
}

func TestExtractErrorMessage_NeverEmpty(t *testing.T) {
	assert.Equal(t, "unknown error", ExtractErrorMessage(nil))
	assert.Equal(t, "unknown error", ExtractErrorMessage(errors.New("   ")))
}
