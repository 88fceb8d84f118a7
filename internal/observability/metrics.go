// Package observability tracks operational counters and derives the
// health/capabilities surface spec §6.4 names: pool stats, per-host RPS
// config, memory usage, a degradation score, supported engines and
// stealth presets. Grounded on the teacher's internal/observability
// package, whose atomic-counter Metrics struct survives; its Prometheus
// text-exposition HTTP endpoint does not, since metrics exporters are an
// explicit non-goal.
package observability

import (
	"log/slog"
	"sync/atomic"
)

// Metrics tracks operational counters for one RipTide process. Every
// field is a lock-free atomic so hot pipeline stages can increment it
// without contending with a reporting goroutine reading Snapshot.
type Metrics struct {
	RequestsTotal  atomic.Int64
	RequestsFailed atomic.Int64
	TimeoutsTotal  atomic.Int64

	CacheHits   atomic.Int64
	CacheMisses atomic.Int64

	RendersTotal        atomic.Int64
	PDFExtractionsTotal atomic.Int64
	BytesDownloaded     atomic.Int64

	JobsSubmitted atomic.Int64
	JobsRetried   atomic.Int64
	JobsFailed    atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// Snapshot returns every counter as a map, the shape the Health Monitor
// and any human-facing status output read from.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"requests_total":        m.RequestsTotal.Load(),
		"requests_failed":       m.RequestsFailed.Load(),
		"timeouts_total":        m.TimeoutsTotal.Load(),
		"cache_hits":            m.CacheHits.Load(),
		"cache_misses":          m.CacheMisses.Load(),
		"renders_total":         m.RendersTotal.Load(),
		"pdf_extractions_total": m.PDFExtractionsTotal.Load(),
		"bytes_downloaded":      m.BytesDownloaded.Load(),
		"jobs_submitted":        m.JobsSubmitted.Load(),
		"jobs_retried":          m.JobsRetried.Load(),
		"jobs_failed":           m.JobsFailed.Load(),
	}
}
