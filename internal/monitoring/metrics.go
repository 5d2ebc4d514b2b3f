// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics. For
// production, export these to Prometheus or similar.
package monitoring

import (
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	requests     atomic.Int64
	successes    atomic.Int64
	streams      atomic.Int64
	compressions atomic.Int64
	tokensSaved  atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordRequest records a proxied request.
func (mc *MetricsCollector) RecordRequest(success bool, _ time.Duration) {
	mc.requests.Add(1)
	if success {
		mc.successes.Add(1)
	}
}

// RecordStream records a streamed request.
func (mc *MetricsCollector) RecordStream() { mc.streams.Add(1) }

// RecordCompression records one compression pass and its net savings.
func (mc *MetricsCollector) RecordCompression(tokensSaved int) {
	mc.compressions.Add(1)
	mc.tokensSaved.Add(int64(tokensSaved))
}

// Stats returns current metrics.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":     mc.requests.Load(),
		"successes":    mc.successes.Load(),
		"streams":      mc.streams.Load(),
		"compressions": mc.compressions.Load(),
		"tokens_saved": mc.tokensSaved.Load(),
	}
}
