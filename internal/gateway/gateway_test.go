package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/prism-gw/prism/internal/config"
	"github.com/prism-gw/prism/internal/tokenizer"
	"github.com/prism-gw/prism/internal/toon"
)

func newTestGateway(t *testing.T, providers config.ProvidersConfig) *Gateway {
	t.Helper()
	cfg := &config.Config{
		Server:    config.ServerConfig{Port: 0},
		Providers: providers,
	}
	g, err := New(cfg)
	require.NoError(t, err)
	return g
}

// =============================================================================
// PROVIDER IDENTIFICATION
// =============================================================================

func TestIdentifyProvider(t *testing.T) {
	g := newTestGateway(t, nil)

	tests := []struct {
		name     string
		header   string
		path     string
		expected string
	}{
		{"explicit header wins", "anthropic", "/chat/completions", "anthropic"},
		{"unknown header falls back to openai", "unknown-provider", "/v1/messages", "openai"},
		{"anthropic path", "", "/v1/messages", "anthropic"},
		{"gemini v1beta path", "", "/v1beta/models/gemini-2.5-pro:generateContent", "gemini"},
		{"gemini stream path", "", "/models/gemini-2.5-pro:streamGenerateContent", "gemini"},
		{"default openai", "", "/chat/completions", "openai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				r.Header.Set(HeaderProvider, tt.header)
			}
			assert.Equal(t, tt.expected, g.identifyProvider(r))
		})
	}
}

// =============================================================================
// COMPLETE REQUEST PATH
// =============================================================================

func TestProxy_CompleteRequest(t *testing.T) {
	upstreamResponse := `{"id":"chatcmpl-1","model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1}}`

	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(upstreamResponse))
	}))
	defer srv.Close()

	g := newTestGateway(t, config.ProvidersConfig{
		"openai": {Endpoint: srv.URL, APIKey: "sk-config"},
	})

	body := `{"model":"gpt-4o","messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	// the provider response replays verbatim
	assert.Equal(t, upstreamResponse, rec.Body.String())
	assert.Equal(t, "/chat/completions", gotPath)
	// no client key: the configured key applies
	assert.Equal(t, "Bearer sk-config", gotAuth)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestProxy_ClientKeyBeatsConfigKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, config.ProvidersConfig{
		"openai": {Endpoint: srv.URL, APIKey: "sk-config"},
	})

	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer sk-client")
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "Bearer sk-client", gotAuth)
}

func TestProxy_ConfiguredModelOverride(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, config.ProvidersConfig{
		"openai": {Endpoint: srv.URL, Model: "gpt-4o-mini"},
	})

	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(`{"model":"gpt-4o","messages":[]}`))
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "gpt-4o-mini", gjson.GetBytes(gotBody, "model").String())
}

func TestProxy_UpstreamErrorMapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit exceeded"}}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, config.ProvidersConfig{
		"openai": {Endpoint: srv.URL},
	})

	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limit exceeded", gjson.Get(rec.Body.String(), "error.message").String())
}

func TestProxy_MethodNotAllowed(t *testing.T) {
	g := newTestGateway(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/chat/completions", nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// =============================================================================
// STREAMING PATH
// =============================================================================

func TestProxy_StreamingForwardsChunks(t *testing.T) {
	chunks := []string{
		`{"id":"c1","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`{"id":"c1","choices":[],"usage":{"prompt_tokens":2,"completion_tokens":2}}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		// the gateway forces the stream flags on
		assert.True(t, gjson.GetBytes(body, "stream").Bool())
		assert.True(t, gjson.GetBytes(body, "stream_options.include_usage").Bool())

		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			io.WriteString(w, "data: "+chunk+"\n\n")
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	g := newTestGateway(t, config.ProvidersConfig{
		"openai": {Endpoint: srv.URL},
	})

	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(`{"model":"gpt-4o","stream":true,"messages":[]}`))
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	assert.Contains(t, out, "data: "+chunks[0]+"\n\n")
	assert.Contains(t, out, "data: "+chunks[1]+"\n\n")
	assert.True(t, strings.HasSuffix(out, "data: [DONE]\n\n"))
}

func TestProxy_GeminiNativeStreamingPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"candidates":[{"content":{"role":"model","parts":[{"text":"hi"}]},"index":0}]}`+"\n\n")
		io.WriteString(w, `data: {"candidates":[{"content":{"role":"model","parts":[]},"finishReason":"STOP","index":0}],"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":1}}`+"\n\n")
	}))
	defer srv.Close()

	g := newTestGateway(t, config.ProvidersConfig{
		"gemini": {Endpoint: srv.URL},
	})

	// Native Gemini: model and verb in the path, no body stream flag.
	body := `{"contents":[{"role":"user","parts":[{"text":"hello"}]}]}`
	req := httptest.NewRequest(http.MethodPost,
		"/v1beta/models/gemini-2.5-pro:streamGenerateContent?alt=sse", strings.NewReader(body))
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "/v1beta/models/gemini-2.5-pro:streamGenerateContent", gotPath)
	assert.Contains(t, rec.Body.String(), `"text":"hi"`)
}

func TestProxy_GeminiNativeCompletePath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"hi"}]}}]}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, config.ProvidersConfig{
		"gemini": {Endpoint: srv.URL},
	})

	req := httptest.NewRequest(http.MethodPost,
		"/v1beta/models/gemini-2.5-pro:generateContent", strings.NewReader(`{"contents":[]}`))
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "/v1beta/models/gemini-2.5-pro:generateContent", gotPath)
}

func TestProxy_StreamingUsageOnContentfulFinalChunk(t *testing.T) {
	// MiniMax sends usage on the last contentful chunk instead of a bare
	// usage chunk; the client must still receive the terminal sentinel.
	chunks := []string{
		`{"id":"m1","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
		`{"id":"m1","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}],"usage":{"prompt_tokens":2,"completion_tokens":2}}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			io.WriteString(w, "data: "+chunk+"\n\n")
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	g := newTestGateway(t, config.ProvidersConfig{
		"minimax": {Endpoint: srv.URL},
	})

	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(`{"model":"MiniMax-M2","stream":true,"messages":[]}`))
	req.Header.Set(HeaderProvider, "minimax")
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	out := rec.Body.String()
	assert.Contains(t, out, "data: "+chunks[0]+"\n\n")
	assert.Contains(t, out, "data: "+chunks[1]+"\n\n")
	assert.True(t, strings.HasSuffix(out, "data: [DONE]\n\n"))
}

func TestProxy_StreamingUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, config.ProvidersConfig{
		"openai": {Endpoint: srv.URL},
	})

	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(`{"stream":true}`))
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "bad key", gjson.Get(rec.Body.String(), "error.message").String())
}

// =============================================================================
// COMPRESSION WIRING
// =============================================================================

type charTokenizer struct{}

func (charTokenizer) CountTokens(text string) int { return len(text) }

func TestProxy_CompressionRewritesToolResults(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, config.ProvidersConfig{
		"openai": {Endpoint: srv.URL},
	})
	g.compressor = &toon.Compressor{
		Tokenizers: func(string) (tokenizer.Tokenizer, error) { return charTokenizer{}, nil },
	}

	body := `{"model":"gpt-4o","messages":[
		{"role":"assistant","tool_calls":[{"id":"call_1","function":{"name":"list","arguments":"{}"}}]},
		{"role":"tool","tool_call_id":"call_1","content":"[{\"id\": 1, \"name\": \"alpha\"}, {\"id\": 2, \"name\": \"beta\"}]"}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	content := gjson.GetBytes(gotBody, "messages.1.content").String()
	assert.Contains(t, content, "[2]{id,name}:")
	assert.Equal(t, int64(1), g.metrics.Stats()["compressions"])
}

// =============================================================================
// OPERATIONAL ENDPOINTS
// =============================================================================

func TestHealthEndpoint(t *testing.T) {
	g := newTestGateway(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", gjson.Get(rec.Body.String(), "status").String())
}

func TestStatsEndpoint(t *testing.T) {
	g := newTestGateway(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gjson.Get(rec.Body.String(), "requests").Exists())
}

func TestModelsEndpoint(t *testing.T) {
	g := newTestGateway(t, config.ProvidersConfig{
		"openai":    {Model: "gpt-4o"},
		"anthropic": {APIKey: "k"},
	})

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	models := gjson.Get(rec.Body.String(), "models").Array()
	require.Len(t, models, 1)
	assert.Equal(t, "openai", models[0].Get("provider").String())
	assert.Equal(t, "gpt-4o", models[0].Get("model").String())
	assert.Contains(t, models[0].Get("capabilities").Raw, "vision")
}

// =============================================================================
// RATE LIMITING AND CLIENT IP
// =============================================================================

func TestRateLimiter_Buckets(t *testing.T) {
	rl := newRateLimiter(2)

	assert.True(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))
	// other IPs keep their own bucket
	assert.True(t, rl.allow("10.0.0.2"))
}

func TestGetClientIP(t *testing.T) {
	g := newTestGateway(t, nil)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "127.0.0.1:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", g.getClientIP(r))

	// forwarding headers from non-localhost peers are ignored
	r.RemoteAddr = "198.51.100.4:5555"
	assert.Equal(t, "198.51.100.4", g.getClientIP(r))
}

func TestPanicRecovery(t *testing.T) {
	g := newTestGateway(t, nil)

	h := g.panicRecovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", gjson.Get(rec.Body.String(), "error.message").String())
}
