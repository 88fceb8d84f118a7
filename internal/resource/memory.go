package resource

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"
)

// MemoryMonitor samples process memory on an interval and exposes a
// lock-free pressure flag the Resource Manager checks on every
// acquisition (spec §4.1, §4.5). Sampling via runtime.MemStats is stdlib
// by necessity: nothing in the example corpus wraps process memory
// telemetry, and the metric is process-local, not a network concern any
// client library in the corpus addresses.
type MemoryMonitor struct {
	highWaterBytes uint64
	pressure       atomic.Bool
	lastHeapAlloc  atomic.Uint64
	logger         *slog.Logger
}

// NewMemoryMonitor creates a monitor that flags pressure once heap-alloc
// exceeds highWaterMB megabytes.
func NewMemoryMonitor(highWaterMB int, logger *slog.Logger) *MemoryMonitor {
	return &MemoryMonitor{
		highWaterBytes: uint64(highWaterMB) * 1024 * 1024,
		logger:         logger.With("component", "memory_monitor"),
	}
}

// Run samples memory every interval until ctx is cancelled.
func (m *MemoryMonitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample()
		}
	}
}

// Sample takes one memory reading immediately, independent of Run's
// ticker. Exposed so callers and tests can force a fresh measurement.
func (m *MemoryMonitor) Sample() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	m.lastHeapAlloc.Store(stats.HeapAlloc)

	wasUnderPressure := m.pressure.Load()
	isUnderPressure := stats.HeapAlloc >= m.highWaterBytes
	m.pressure.Store(isUnderPressure)

	if isUnderPressure && !wasUnderPressure {
		m.logger.Warn("memory pressure engaged", "heap_alloc_bytes", stats.HeapAlloc, "high_water_bytes", m.highWaterBytes)
	} else if !isUnderPressure && wasUnderPressure {
		m.logger.Info("memory pressure cleared", "heap_alloc_bytes", stats.HeapAlloc)
	}
}

// UnderPressure reports the most recently sampled pressure state.
func (m *MemoryMonitor) UnderPressure() bool {
	return m.pressure.Load()
}

// HeapAllocBytes returns the most recently sampled heap allocation.
func (m *MemoryMonitor) HeapAllocBytes() uint64 {
	return m.lastHeapAlloc.Load()
}
