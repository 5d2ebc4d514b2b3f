// Package gateway is the generic proxy handler over the provider registry.
//
// DESIGN: The handler never touches provider internals. Control flow:
//  1. Identify the provider (X-Provider header, else path heuristics)
//  2. Look up its Factory and wrap the body in a RequestAdapter
//  3. Apply staged mutations: configured model override, TOON compression
//  4. Execute (complete) or ExecuteStream (SSE pass-through)
//  5. Hand the complete or synthesized response to usage bookkeeping
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prism-gw/prism/internal/adapters"
	"github.com/prism-gw/prism/internal/config"
	"github.com/prism-gw/prism/internal/modelcaps"
	"github.com/prism-gw/prism/internal/monitoring"
	"github.com/prism-gw/prism/internal/pricing"
	"github.com/prism-gw/prism/internal/toon"
)

// Header names used by the gateway.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderProvider  = "X-Provider"
)

// MaxRateLimitBuckets caps the per-IP rate limiter state.
const MaxRateLimitBuckets = 10000

// RequestsPerSecond is the per-IP rate limit.
const RequestsPerSecond = 50

// MaxBodyBytes bounds inbound request bodies.
const MaxBodyBytes = 50 << 20

// Gateway proxies client requests to LLM providers.
type Gateway struct {
	config        *config.Config
	registry      *adapters.Registry
	compressor    *toon.Compressor
	prices        pricing.Lookup
	tracker       *monitoring.Tracker
	metrics       *monitoring.MetricsCollector
	requestLogger *monitoring.RequestLogger
	rateLimiter   *rateLimiter
	caps          *modelcaps.Table

	server *http.Server
}

// New wires a Gateway from configuration.
func New(cfg *config.Config) (*Gateway, error) {
	tracker, err := monitoring.NewTracker(cfg.Monitoring.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	g := &Gateway{
		config:        cfg,
		registry:      adapters.NewRegistry(),
		tracker:       tracker,
		metrics:       monitoring.NewMetricsCollector(),
		requestLogger: monitoring.NewRequestLogger(monitoring.New(cfg.Monitoring.Logging)),
		rateLimiter:   newRateLimiter(RequestsPerSecond),
		caps:          modelcaps.NewTable(nil),
	}

	if cfg.Compression.Enabled {
		store, err := pricing.Open(cfg.Compression.PriceDBPath)
		if err != nil {
			return nil, fmt.Errorf("open price store: %w", err)
		}
		g.prices = store
		g.compressor = &toon.Compressor{Prices: store}
	}

	return g, nil
}

// Handler builds the full middleware chain around the proxy routes.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/stats", g.handleStats)
	mux.HandleFunc("/models", g.handleModels)
	mux.HandleFunc("/", g.handleProxy)

	var h http.Handler = mux
	h = g.security(h)
	h = g.loggingMiddleware(h)
	h = g.rateLimit(h)
	h = g.panicRecovery(h)
	return h
}

// Start runs the HTTP server until the context is cancelled.
func (g *Gateway) Start(ctx context.Context) error {
	g.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", g.config.Server.Port),
		Handler:      g.Handler(),
		ReadTimeout:  g.config.Server.ReadTimeout.Std(),
		WriteTimeout: g.config.Server.WriteTimeout.Std(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", g.config.Server.Port).Msg("gateway listening")
		errCh <- g.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return g.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Shutdown drains the server and closes held resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var firstErr error
	if g.server != nil {
		if err := g.server.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if g.prices != nil {
		if err := g.prices.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := g.tracker.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (g *Gateway) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	stats := g.metrics.Stats()
	fmt.Fprintf(w, `{"requests":%d,"successes":%d,"streams":%d,"compressions":%d,"tokens_saved":%d}`,
		stats["requests"], stats["successes"], stats["streams"], stats["compressions"], stats["tokens_saved"])
}

// handleModels lists configured provider models with capability tags.
func (g *Gateway) handleModels(w http.ResponseWriter, _ *http.Request) {
	type modelInfo struct {
		Provider     string                 `json:"provider"`
		Model        string                 `json:"model"`
		Capabilities []modelcaps.Capability `json:"capabilities"`
	}

	models := []modelInfo{}
	for name, pcfg := range g.config.Providers {
		if pcfg.Model == "" {
			continue
		}
		models = append(models, modelInfo{
			Provider:     name,
			Model:        pcfg.Model,
			Capabilities: g.caps.For(pcfg.Model),
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Provider < models[j].Provider })

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"models": models})
}

// writeError sends a uniform JSON error envelope.
func (g *Gateway) writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"message":%q}}`, message)
}
