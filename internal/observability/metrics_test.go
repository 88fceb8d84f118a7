package observability

import (
	"log/slog"
	"os"
	"testing"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestMetricsSnapshotReflectsCounters(t *testing.T) {
	m := NewMetrics(testLogger)
	m.RequestsTotal.Add(10)
	m.RequestsFailed.Add(2)
	m.TimeoutsTotal.Add(1)
	m.CacheHits.Add(7)
	m.CacheMisses.Add(3)

	snap := m.Snapshot()
	if snap["requests_total"] != 10 {
		t.Errorf("requests_total = %d, want 10", snap["requests_total"])
	}
	if snap["requests_failed"] != 2 {
		t.Errorf("requests_failed = %d, want 2", snap["requests_failed"])
	}
	if snap["cache_hits"] != 7 || snap["cache_misses"] != 3 {
		t.Errorf("cache_hits/misses = %d/%d, want 7/3", snap["cache_hits"], snap["cache_misses"])
	}
}
