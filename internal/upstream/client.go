// Package upstream is the HTTP transport to provider APIs. It sends complete
// requests and consumes SSE streams; no retry policy lives here.
package upstream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AuthFunc applies provider-specific authentication headers.
type AuthFunc func(h http.Header, apiKey string)

// BearerAuth sets the Authorization: Bearer header used by the OpenAI family.
func BearerAuth(h http.Header, apiKey string) {
	h.Set("Authorization", "Bearer "+apiKey)
}

// HeaderAuth returns an AuthFunc that places the key in a named header.
func HeaderAuth(name string) AuthFunc {
	return func(h http.Header, apiKey string) {
		h.Set(name, apiKey)
	}
}

// AnthropicAuth sets the x-api-key and required version headers.
func AnthropicAuth(h http.Header, apiKey string) {
	h.Set("x-api-key", apiKey)
	h.Set("anthropic-version", "2023-06-01")
}

// RequestSigner signs an outgoing request in place. Used for providers with
// signature-based auth instead of a bearer key.
type RequestSigner interface {
	SignRequest(ctx context.Context, req *http.Request, body []byte) error
}

// Client sends requests to one provider endpoint. Instances are safe for
// concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	auth    AuthFunc
	signer  RequestSigner

	// httpClient serves complete calls under an overall deadline;
	// streamClient has none, since an SSE response routinely outlives any
	// fixed timeout. Context cancellation tears streams down.
	httpClient   *http.Client
	streamClient *http.Client
}

// Options configures optional Client behavior.
type Options struct {
	// HTTPClient overrides the default transport for both complete and
	// streaming calls, e.g. for metrics instrumentation. Nil uses a client
	// with an overall timeout for non-streaming calls and a deadline-free
	// one for streams.
	HTTPClient *http.Client

	// Signer replaces header auth with request signing when set.
	Signer RequestSigner
}

// NewClient builds a client for one provider base URL.
func NewClient(baseURL, apiKey string, auth AuthFunc, opts Options) *Client {
	hc, sc := opts.HTTPClient, opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Minute}
		sc = &http.Client{}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		auth:         auth,
		signer:       opts.Signer,
		httpClient:   hc,
		streamClient: sc,
	}
}

// BaseURL returns the configured endpoint root.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) newRequest(ctx context.Context, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.signer != nil {
		if err := c.signer.SignRequest(ctx, req, body); err != nil {
			return nil, err
		}
		return req, nil
	}
	if c.auth != nil && c.apiKey != "" {
		c.auth(req.Header, c.apiKey)
	}
	return req, nil
}

// Do sends a request and returns the complete response body. Non-2xx
// responses return an *APIError carrying the body.
func (c *Client) Do(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := c.newRequest(ctx, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: respBody}
	}
	return respBody, nil
}

// Stream sends a request and returns a reader over the SSE data payloads.
// The caller owns the stream and must Close it; abandoning the context also
// tears the connection down.
func (c *Client) Stream(ctx context.Context, path string, body []byte) (*ChunkStream, error) {
	req, err := c.newRequest(ctx, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: respBody}
	}

	return &ChunkStream{
		reader: bufio.NewReader(resp.Body),
		closer: resp.Body,
	}, nil
}

// APIError is a non-2xx upstream response with its body preserved for
// client-facing error normalization.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, string(e.Body))
}

// ResponseBody returns the raw upstream error body.
func (e *APIError) ResponseBody() []byte { return e.Body }

// ChunkStream iterates the data payloads of one SSE response. Event-name
// lines are skipped: the providers proxied here repeat the event type inside
// the data payload.
type ChunkStream struct {
	reader *bufio.Reader
	closer io.Closer
}

// Next returns the next data payload. io.EOF signals normal stream end,
// including the [DONE] sentinel.
func (s *ChunkStream) Next() ([]byte, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF && strings.TrimSpace(line) == "" {
				return nil, io.EOF
			}
			if err == io.EOF {
				// fall through so a final unterminated data line is kept
			} else {
				return nil, err
			}
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "event:") || strings.HasPrefix(trimmed, ":") {
			if err == io.EOF {
				return nil, io.EOF
			}
			continue
		}
		if !strings.HasPrefix(trimmed, "data:") {
			if err == io.EOF {
				return nil, io.EOF
			}
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(trimmed, "data:"))
		if data == "[DONE]" {
			return nil, io.EOF
		}
		return []byte(data), nil
	}
}

// Close releases the underlying connection.
func (s *ChunkStream) Close() error { return s.closer.Close() }
