package adapters

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/prism-gw/prism/internal/canonical"
)

// bodyCarrier is satisfied by transport errors that retain the upstream
// response body (see upstream.APIError).
type bodyCarrier interface {
	ResponseBody() []byte
}

// ExtractErrorMessage normalizes provider error shapes into one plain string.
// It handles the nested {"error":{"message":...}} envelope, a top-level
// "message" field, plain Go errors, and falls back to a stringified form.
// It never panics and never returns an empty string.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}

	if carrier, ok := err.(bodyCarrier); ok {
		if msg := messageFromBody(carrier.ResponseBody()); msg != "" {
			return msg
		}
	}

	if msg := strings.TrimSpace(err.Error()); msg != "" {
		// The error text itself may be a provider error envelope.
		if parsed := messageFromBody([]byte(msg)); parsed != "" {
			return parsed
		}
		return msg
	}
	return "unknown error"
}

func messageFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if _, ok := canonical.TryParseJSON(string(body)); !ok {
		return strings.TrimSpace(string(body))
	}
	if msg := gjson.GetBytes(body, "error.message"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String()
	}
	// Gemini nests errors under an array on batch endpoints.
	if msg := gjson.GetBytes(body, "0.error.message"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String()
	}
	if msg := gjson.GetBytes(body, "message"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String()
	}
	if errField := gjson.GetBytes(body, "error"); errField.Type == gjson.String && errField.String() != "" {
		return errField.String()
	}
	return strings.TrimSpace(string(body))
}
