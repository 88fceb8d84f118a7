package observability

import (
	"time"

	"github.com/foofork/riptide/internal/browserpool"
	"github.com/foofork/riptide/internal/resource"
)

// Level is a human-readable health tier derived from DegradationScore,
// richer than the bare float spec §6.4 names on its own. Grounded on
// health.rs's HealthLevel (Healthy/Degraded/Critical/Unavailable).
type Level string

const (
	LevelHealthy     Level = "healthy"
	LevelDegraded    Level = "degraded"
	LevelCritical    Level = "critical"
	LevelUnavailable Level = "unavailable"
)

// Thresholds maps a degradation score in [0,1] onto a Level. Grounded on
// health.rs's HealthCheckConfig degraded_threshold/critical_threshold,
// expressed here as score fractions rather than the original's
// error-rate percentages since RipTide's score already blends several
// signals into one number.
type Thresholds struct {
	Degraded    float64
	Critical    float64
	Unavailable float64
}

// DefaultThresholds matches the teacher corpus's conservative defaults:
// most traffic tolerates occasional timeouts without being flagged.
func DefaultThresholds() Thresholds {
	return Thresholds{Degraded: 0.25, Critical: 0.6, Unavailable: 0.9}
}

func (t Thresholds) levelFor(score float64) Level {
	switch {
	case score >= t.Unavailable:
		return LevelUnavailable
	case score >= t.Critical:
		return LevelCritical
	case score >= t.Degraded:
		return LevelDegraded
	default:
		return LevelHealthy
	}
}

// PoolStats summarizes browser and PDF slot occupancy for the
// capabilities surface.
type PoolStats struct {
	BrowserInstances    int
	BrowserMaxInstances int
	BrowserAvailable    int
	BrowserCreations    int64
	BrowserRetirements  int64
	PDFSlotsInUse       int
	PDFSlotsCapacity    int
}

// Report is the full health/capabilities document spec §6.4 names: pool
// stats, per-host RPS config, memory usage, a degradation score in
// [0,1], supported engines and stealth presets.
type Report struct {
	Level            Level
	DegradationScore float64

	Pool PoolStats

	MemoryHeapAllocBytes uint64
	MemoryUnderPressure  bool

	RateLimitPerHostRPS float64

	SupportedEngines []string
	StealthPresets   []string

	Timestamp time.Time
}

// queueSaturationDepth is the queue depth treated as fully saturated
// (score contribution 1.0) when folding queue-wait into the degradation
// score; chosen as a round number well above normal steady-state depth
// rather than derived from a load test, since no example repo's queue
// carries a saturation constant to borrow.
const queueSaturationDepth = 100

// Monitor computes the degradation score and assembles health Reports
// from the process's resource, pool and metrics state. It holds no
// goroutine of its own; Report() samples current state synchronously,
// the same pull-based shape the teacher's metrics ServeHTTP uses.
type Monitor struct {
	metrics     *Metrics
	memory      *resource.MemoryMonitor
	resourceMgr *resource.Manager
	browserPool *browserpool.Pool
	browserMax  int
	pdfSlots    *resource.PDFSemaphore

	rateLimitRPS   float64
	supportedEngines []string
	stealthPresets []string
	queueDepth     func() int

	thresholds Thresholds
}

// NewMonitor builds a Monitor. queueDepth may be nil when no worker pool
// is wired (sync-only deployments); it is then treated as always zero.
func NewMonitor(
	metrics *Metrics,
	memory *resource.MemoryMonitor,
	resourceMgr *resource.Manager,
	browserPool *browserpool.Pool,
	browserMaxInstances int,
	pdfSlots *resource.PDFSemaphore,
	rateLimitRPS float64,
	supportedEngines []string,
	stealthPresets []string,
	queueDepth func() int,
	thresholds Thresholds,
) *Monitor {
	return &Monitor{
		metrics:          metrics,
		memory:           memory,
		resourceMgr:      resourceMgr,
		browserPool:      browserPool,
		browserMax:       browserMaxInstances,
		pdfSlots:         pdfSlots,
		rateLimitRPS:     rateLimitRPS,
		supportedEngines: supportedEngines,
		stealthPresets:   stealthPresets,
		queueDepth:       queueDepth,
		thresholds:       thresholds,
	}
}

// degradationScore blends timeout rate, memory pressure and queue
// saturation into one number in [0,1] (spec §6.4's "degradation score").
// The weights favor timeouts, since a rising timeout rate is the
// earliest signal that upstream sites or the browser pool are
// struggling, with memory pressure and queue depth as secondary signals.
func (h *Monitor) degradationScore() float64 {
	var timeoutRate float64
	if h.resourceMgr != nil {
		total := h.metrics.RequestsTotal.Load()
		if total > 0 {
			timeoutRate = float64(h.resourceMgr.TimeoutCount()) / float64(total)
			if timeoutRate > 1 {
				timeoutRate = 1
			}
		}
	}

	var memoryPressure float64
	if h.memory != nil && h.memory.UnderPressure() {
		memoryPressure = 1
	}

	var queueWait float64
	if h.queueDepth != nil {
		depth := h.queueDepth()
		queueWait = float64(depth) / float64(queueSaturationDepth)
		if queueWait > 1 {
			queueWait = 1
		}
	}

	score := 0.5*timeoutRate + 0.3*memoryPressure + 0.2*queueWait
	if score > 1 {
		score = 1
	}
	return score
}

// Report assembles the current health/capabilities document.
func (h *Monitor) Report() Report {
	score := h.degradationScore()

	var poolStats browserpool.Stats
	if h.browserPool != nil {
		poolStats = h.browserPool.Stats()
	}

	var pdfInUse, pdfCap int
	if h.pdfSlots != nil {
		pdfInUse = h.pdfSlots.InUse()
		pdfCap = h.pdfSlots.Capacity()
	}

	var heapAlloc uint64
	var underPressure bool
	if h.memory != nil {
		heapAlloc = h.memory.HeapAllocBytes()
		underPressure = h.memory.UnderPressure()
	}

	return Report{
		Level:            h.thresholds.levelFor(score),
		DegradationScore: score,
		Pool: PoolStats{
			BrowserInstances:    poolStats.InUse + poolStats.Available,
			BrowserMaxInstances: h.browserMax,
			BrowserAvailable:    poolStats.Available,
			BrowserCreations:    poolStats.Creations,
			BrowserRetirements:  poolStats.Retirements,
			PDFSlotsInUse:       pdfInUse,
			PDFSlotsCapacity:    pdfCap,
		},
		MemoryHeapAllocBytes: heapAlloc,
		MemoryUnderPressure:  underPressure,
		RateLimitPerHostRPS:  h.rateLimitRPS,
		SupportedEngines:     h.supportedEngines,
		StealthPresets:       h.stealthPresets,
		Timestamp:            time.Now(),
	}
}
