// Package monitoring - request_logger.go logs HTTP request lifecycle.
//
// DESIGN: Structured logging for request tracing at DEBUG level:
//   - LogIncoming:    Request received from client
//   - LogOutgoing:    Request forwarded to provider
//   - LogResponse:    Response sent to client
//   - LogCompression: Tool-result compression details
package monitoring

import (
	"net/http"
	"time"
)

// RequestLogger logs HTTP request lifecycle events.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// RequestInfo contains incoming request information.
type RequestInfo struct {
	RequestID  string
	Method     string
	Path       string
	RemoteAddr string
	BodySize   int
	StartTime  time.Time
}

// NewRequestInfo creates RequestInfo from an HTTP request.
func NewRequestInfo(r *http.Request, requestID string, bodySize int) *RequestInfo {
	return &RequestInfo{
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		BodySize:   bodySize,
		StartTime:  time.Now(),
	}
}

// LogIncoming logs an incoming request.
func (rl *RequestLogger) LogIncoming(info *RequestInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("method", info.Method).
		Str("path", info.Path).
		Int("body_size", info.BodySize).
		Msg("incoming")
}

// OutgoingRequestInfo contains outgoing request information.
type OutgoingRequestInfo struct {
	RequestID  string
	Provider   string
	Model      string
	BodySize   int
	Streaming  bool
	Compressed bool
}

// LogOutgoing logs a request forwarded upstream.
func (rl *RequestLogger) LogOutgoing(info *OutgoingRequestInfo) {
	event := rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("provider", info.Provider).
		Str("model", info.Model).
		Int("body_size", info.BodySize).
		Bool("streaming", info.Streaming)
	if info.Compressed {
		event = event.Bool("compressed", true)
	}
	event.Msg("outgoing")
}

// ResponseInfo contains response information.
type ResponseInfo struct {
	RequestID  string
	StatusCode int
	Latency    time.Duration
}

// LogResponse logs a response.
func (rl *RequestLogger) LogResponse(info *ResponseInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Int("status", info.StatusCode).
		Dur("latency", info.Latency).
		Msg("response")
}

// CompressionInfo contains tool-result compression information.
type CompressionInfo struct {
	RequestID    string
	Provider     string
	Model        string
	TokensBefore int
	TokensAfter  int
	CostSavings  float64
	Duration     time.Duration
}

// LogCompression logs a compression pass.
func (rl *RequestLogger) LogCompression(info *CompressionInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("provider", info.Provider).
		Int("tokens_before", info.TokensBefore).
		Int("tokens_after", info.TokensAfter).
		Float64("cost_savings", info.CostSavings).
		Dur("duration", info.Duration).
		Msg("compression")
}
