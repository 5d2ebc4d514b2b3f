// Package monitoring - telemetry.go records usage events to JSONL files.
//
// DESIGN: Tracker appends one JSON object per line, immediately after each
// event, so the file tails in real time. Usage events are produced from
// complete responses only; for streams the synthesized end-of-stream
// response feeds the same path.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// TelemetryConfig controls usage event recording.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}

// UsageEvent is one proxied request's accounting record.
type UsageEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	Streaming     bool      `json:"streaming"`
	InputTokens   int       `json:"input_tokens"`
	OutputTokens  int       `json:"output_tokens"`
	TokensBefore  *int      `json:"compression_tokens_before,omitempty"`
	TokensAfter   *int      `json:"compression_tokens_after,omitempty"`
	CostSavings   *float64  `json:"compression_cost_savings,omitempty"`
	FirstChunkMS  int64     `json:"first_chunk_ms,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
	Success       bool      `json:"success"`
	ErrorMessage  string    `json:"error,omitempty"`
	UpstreamModel string    `json:"upstream_model,omitempty"`
	UpstreamID    string    `json:"upstream_id,omitempty"`
}

// Tracker handles usage event recording to file and stdout.
type Tracker struct {
	config     TelemetryConfig
	logPath    string
	eventCount int
	mu         sync.Mutex
}

// NewTracker creates a telemetry tracker, preparing the log file.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{config: cfg}

	if !cfg.Enabled || cfg.LogPath == "" {
		return t, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
		return nil, err
	}
	t.logPath = cfg.LogPath
	if _, err := os.Stat(cfg.LogPath); os.IsNotExist(err) {
		if f, err := os.Create(cfg.LogPath); err == nil {
			f.Close()
		}
	}
	return t, nil
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// RecordUsage records one request's usage event.
func (t *Tracker) RecordUsage(event *UsageEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		reqID := event.RequestID
		if len(reqID) > 8 {
			reqID = reqID[:8]
		}
		log.Info().
			Str("request_id", reqID).
			Str("provider", event.Provider).
			Str("model", event.Model).
			Int("input_tokens", event.InputTokens).
			Int("output_tokens", event.OutputTokens).
			Bool("success", event.Success).
			Msg("telemetry")
	}

	if t.logPath != "" {
		if err := appendJSONL(t.logPath, event); err != nil {
			log.Error().Err(err).Str("path", t.logPath).Msg("telemetry: failed to write usage event")
		} else {
			t.eventCount++
		}
	}
}

// Close logs a session summary.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.logPath != "" && t.eventCount > 0 {
		log.Info().
			Str("path", t.logPath).
			Int("events", t.eventCount).
			Msg("telemetry: session complete")
	}
	return nil
}
