// Proxy handler: the generic control flow over provider factories.
package gateway

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prism-gw/prism/internal/adapters"
	"github.com/prism-gw/prism/internal/monitoring"
	"github.com/prism-gw/prism/internal/toon"
	"github.com/prism-gw/prism/internal/upstream"
)

// identifyProvider resolves the target provider: the X-Provider header wins,
// then path heuristics, then the OpenAI fallback.
func (g *Gateway) identifyProvider(r *http.Request) string {
	if name := r.Header.Get(HeaderProvider); name != "" {
		if g.registry.Get(name) != nil {
			return name
		}
		log.Warn().Str("provider", name).Msg("unknown provider header, falling back to openai")
		return adapters.ProviderOpenAI
	}

	path := r.URL.Path
	switch {
	case strings.Contains(path, "/v1/messages"):
		return adapters.ProviderAnthropic
	case strings.Contains(path, "/v1beta/") || strings.Contains(path, ":generateContent") || strings.Contains(path, ":streamGenerateContent"):
		return adapters.ProviderGemini
	default:
		return adapters.ProviderOpenAI
	}
}

func (g *Gateway) handleProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		g.writeError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	factory := g.registry.Get(g.identifyProvider(r))
	requestID := monitoring.RequestIDFromContext(r.Context())
	start := time.Now()

	ra := factory.NewRequestAdapter(body)
	streaming := ra.IsStreaming()
	if factory.Provider == adapters.ProviderGemini {
		// Gemini carries the model and the streaming verb in the URL path,
		// not the body.
		pathModel, streamVerb := adapters.ParseGeminiPath(r.URL.Path)
		if pathModel != "" {
			ra.SetModel(pathModel)
		}
		streaming = streaming || streamVerb
	}

	pcfg := g.config.Providers.Get(factory.Provider)
	if pcfg.Model != "" {
		ra.SetModel(pcfg.Model)
	}

	var compression toon.Result
	if g.compressor != nil {
		compStart := time.Now()
		res, err := adapters.ApplyToonCompression(r.Context(), ra, g.compressor, ra.Model())
		if err != nil {
			// compression is best effort, the request proceeds uncompressed
			log.Warn().Err(err).Str("provider", factory.Provider).Msg("compression failed")
		} else {
			compression = res
			if saved := res.Saved(); saved > 0 {
				g.metrics.RecordCompression(saved)
				info := &monitoring.CompressionInfo{
					RequestID:    requestID,
					Provider:     factory.Provider,
					Model:        ra.Model(),
					TokensBefore: *res.TokensBefore,
					TokensAfter:  *res.TokensAfter,
					Duration:     time.Since(compStart),
				}
				if res.CostSavings != nil {
					info.CostSavings = *res.CostSavings
				}
				g.requestLogger.LogCompression(info)
			}
		}
	}

	apiKey := factory.ExtractAPIKey(r.Header)
	if apiKey == "" {
		apiKey = pcfg.APIKey
	}
	client := factory.NewClient(apiKey, pcfg.Endpoint, upstream.Options{})

	outBody := ra.ToProviderRequest()
	g.requestLogger.LogOutgoing(&monitoring.OutgoingRequestInfo{
		RequestID:  requestID,
		Provider:   factory.Provider,
		Model:      ra.Model(),
		BodySize:   len(outBody),
		Streaming:  streaming,
		Compressed: compression.Saved() > 0,
	})

	if streaming {
		g.proxyStream(w, r, factory, client, ra, compression, requestID, start)
		return
	}
	g.proxyComplete(w, r, factory, client, ra, compression, requestID, start)
}

// proxyComplete forwards a non-streaming request and replays the provider
// response verbatim.
func (g *Gateway) proxyComplete(
	w http.ResponseWriter,
	r *http.Request,
	factory *adapters.Factory,
	client *upstream.Client,
	ra adapters.RequestAdapter,
	compression toon.Result,
	requestID string,
	start time.Time,
) {
	respBody, err := factory.Execute(r.Context(), client, ra.ToProviderRequest(), ra.Model())
	if err != nil {
		msg := factory.ExtractErrorMessage(err)
		g.writeError(w, msg, upstreamStatus(err))
		g.recordUsage(&monitoring.UsageEvent{
			Timestamp:    time.Now(),
			RequestID:    requestID,
			Provider:     factory.Provider,
			Model:        ra.Model(),
			DurationMS:   time.Since(start).Milliseconds(),
			Success:      false,
			ErrorMessage: msg,
		}, compression)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(respBody); err != nil {
		log.Debug().Err(err).Msg("client went away before response write")
	}

	pa := factory.NewResponseAdapter(respBody)
	event := g.usageEvent(requestID, factory.Provider, ra.Model(), pa, false, start)
	// bookkeeping must not delay the response path
	go g.recordUsage(event, compression)
}

// proxyStream forwards chunks as they arrive, with per-chunk flushing, and
// feeds the synthesized end-of-stream response to bookkeeping.
func (g *Gateway) proxyStream(
	w http.ResponseWriter,
	r *http.Request,
	factory *adapters.Factory,
	client *upstream.Client,
	ra adapters.RequestAdapter,
	compression toon.Result,
	requestID string,
	start time.Time,
) {
	stream, err := factory.ExecuteStream(r.Context(), client, ra.ToProviderRequest(), ra.Model())
	if err != nil {
		msg := factory.ExtractErrorMessage(err)
		g.writeError(w, msg, upstreamStatus(err))
		g.recordUsage(&monitoring.UsageEvent{
			Timestamp:    time.Now(),
			RequestID:    requestID,
			Provider:     factory.Provider,
			Model:        ra.Model(),
			Streaming:    true,
			DurationMS:   time.Since(start).Milliseconds(),
			Success:      false,
			ErrorMessage: msg,
		}, compression)
		return
	}
	defer stream.Close()

	sa := factory.NewStreamAdapter()
	for k, v := range sa.SSEHeaders() {
		w.Header().Set(k, v)
	}
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	finished := false
	terminated := false
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			finished = true
			break
		}
		if err != nil {
			// client disconnect cancels r.Context(), which surfaces here;
			// the upstream stream is abandoned either way
			log.Debug().Err(err).Str("request_id", requestID).Msg("stream ended early")
			break
		}

		result := sa.ProcessChunk(chunk)
		if result.SSE != "" {
			if _, err := io.WriteString(w, result.SSE); err != nil {
				log.Debug().Err(err).Str("request_id", requestID).Msg("client write failed")
				break
			}
			flush()
		}
		if result.Terminal {
			// The chunk's own frame ended the stream (Anthropic's
			// message_stop); appending FormatEndSSE would duplicate it.
			terminated = true
		}
		if result.IsFinal {
			finished = true
		}
	}

	if end := sa.FormatEndSSE(); end != "" && !terminated {
		if _, err := io.WriteString(w, end); err == nil {
			flush()
		}
	}

	g.metrics.RecordStream()

	pa := factory.NewResponseAdapter(sa.ToProviderResponse())
	event := g.usageEvent(requestID, factory.Provider, ra.Model(), pa, true, start)
	event.Success = finished
	event.FirstChunkMS = sa.FirstChunkLatency().Milliseconds()
	go g.recordUsage(event, compression)
}

// usageEvent assembles the accounting record from a complete (or
// synthesized) response.
func (g *Gateway) usageEvent(
	requestID, provider, model string,
	pa adapters.ResponseAdapter,
	streaming bool,
	start time.Time,
) *monitoring.UsageEvent {
	usage := pa.Usage()
	return &monitoring.UsageEvent{
		Timestamp:     time.Now(),
		RequestID:     requestID,
		Provider:      provider,
		Model:         model,
		Streaming:     streaming,
		InputTokens:   usage.InputTokens,
		OutputTokens:  usage.OutputTokens,
		DurationMS:    time.Since(start).Milliseconds(),
		Success:       true,
		UpstreamModel: pa.Model(),
		UpstreamID:    pa.ID(),
	}
}

func (g *Gateway) recordUsage(event *monitoring.UsageEvent, compression toon.Result) {
	event.TokensBefore = compression.TokensBefore
	event.TokensAfter = compression.TokensAfter
	event.CostSavings = compression.CostSavings
	g.tracker.RecordUsage(event)
}

// upstreamStatus maps a transport error onto the client-facing status,
// passing provider statuses through and defaulting to 502.
func upstreamStatus(err error) int {
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return http.StatusBadGateway
}
