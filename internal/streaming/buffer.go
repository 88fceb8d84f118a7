// Package streaming delivers a pipeline run's frames over NDJSON, SSE or
// WebSocket through one shared adaptive buffer and backpressure policy
// (spec §4.10, §4.11), the same "one core, many protocol framers" shape
// the teacher's fetcher applies to HTTP vs. browser transports.
package streaming

import (
	"sync"
	"time"
)

// BufferConfig tunes one DynamicBuffer's resize policy.
type BufferConfig struct {
	InitialSize        int
	MaxSize            int
	MinSize            int
	GrowthFactor       float64
	ShrinkFactor       float64
	SlowSendThreshold  time.Duration
	MaxSlowSends       int
	BackpressureWindow int
}

// DefaultBufferConfig matches the values named by the backpressure buffer
// component (spec §4.11).
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		InitialSize:        256,
		MaxSize:            4096,
		MinSize:            32,
		GrowthFactor:       2.0,
		ShrinkFactor:       0.75,
		SlowSendThreshold:  100 * time.Millisecond,
		MaxSlowSends:       5,
		BackpressureWindow: 20,
	}
}

// BufferStats is a point-in-time snapshot of one DynamicBuffer's counters.
type BufferStats struct {
	CurrentSize      int
	PeakSize         int
	TotalMessages    uint64
	DroppedMessages  uint64
	Resizes          uint64
	SlowSends        uint64
	AverageSendTimeMs float64
}

// DynamicBuffer tracks one connection's adaptive channel capacity: it
// grows when the drop rate is high and shrinks when sends are
// consistently slow, the resize policy a BackpressureHandler and a
// protocol framer both consult before creating or resizing the
// connection's delivery channel.
type DynamicBuffer struct {
	mu sync.Mutex

	cfg BufferConfig

	currentSize   int
	peakSize      int
	totalMessages uint64
	dropped       uint64
	resizes       uint64

	recentSendTimes []time.Duration // ring-like window, capped at BackpressureWindow
	totalSendTime   time.Duration
	slowSends       uint64

	recentDrops int // drops since the last send-triggered resize check
}

// NewDynamicBuffer builds a buffer with DefaultBufferConfig.
func NewDynamicBuffer() *DynamicBuffer {
	return NewDynamicBufferWithConfig(DefaultBufferConfig())
}

// NewDynamicBufferWithConfig builds a buffer with cfg.
func NewDynamicBufferWithConfig(cfg BufferConfig) *DynamicBuffer {
	return &DynamicBuffer{
		cfg:         cfg,
		currentSize: cfg.InitialSize,
		peakSize:    cfg.InitialSize,
	}
}

// Capacity returns the buffer's current channel capacity.
func (b *DynamicBuffer) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentSize
}

// RecordSend records one successful send's latency, adjusting the
// backpressure window and, if a consistent slow-send streak has formed,
// shrinking the buffer (spec §4.11's shrink policy: "under-backpressure
// shrinks").
func (b *DynamicBuffer) RecordSend(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalMessages++
	b.totalSendTime += d

	b.recentSendTimes = append(b.recentSendTimes, d)
	if len(b.recentSendTimes) > b.cfg.BackpressureWindow {
		b.recentSendTimes = b.recentSendTimes[len(b.recentSendTimes)-b.cfg.BackpressureWindow:]
	}
	if d >= b.cfg.SlowSendThreshold {
		b.slowSends++
	}

	if b.isUnderBackpressureLocked() {
		b.shrinkLocked()
	} else if b.recentDrops > 0 {
		// A send arriving after a burst of drops is the resize trigger
		// point; the drop rate itself was already tracked in RecordDrop.
		b.maybeGrowLocked()
	}
}

// RecordDrop records one dropped message. Growth is evaluated lazily on
// the next RecordSend, mirroring the reference buffer's behavior of only
// resizing when record_send is next called after a drop burst.
func (b *DynamicBuffer) RecordDrop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dropped++
	b.recentDrops++
}

// IsUnderBackpressure reports whether the recent-send window's slow-send
// count exceeds MaxSlowSends.
func (b *DynamicBuffer) IsUnderBackpressure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isUnderBackpressureLocked()
}

func (b *DynamicBuffer) isUnderBackpressureLocked() bool {
	if len(b.recentSendTimes) == 0 {
		return false
	}
	slow := 0
	for _, d := range b.recentSendTimes {
		if d >= b.cfg.SlowSendThreshold {
			slow++
		}
	}
	return slow > b.cfg.MaxSlowSends
}

func (b *DynamicBuffer) shrinkLocked() {
	next := int(float64(b.currentSize) * b.cfg.ShrinkFactor)
	if next < b.cfg.MinSize {
		next = b.cfg.MinSize
	}
	if next == b.currentSize {
		return
	}
	b.currentSize = next
	b.resizes++
}

// maybeGrowLocked grows the buffer when the drops since the last resize
// check exceed 10% of those drops plus the sends in the current window
// (spec §4.11's grow
// policy: "drop-rate>10% grows").
func (b *DynamicBuffer) maybeGrowLocked() {
	total := b.recentDrops + len(b.recentSendTimes)
	if total == 0 {
		return
	}
	dropRate := float64(b.recentDrops) / float64(total)
	b.recentDrops = 0

	if dropRate <= 0.10 {
		return
	}

	next := int(float64(b.currentSize) * b.cfg.GrowthFactor)
	if next > b.cfg.MaxSize {
		next = b.cfg.MaxSize
	}
	if next == b.currentSize {
		return
	}
	b.currentSize = next
	if b.currentSize > b.peakSize {
		b.peakSize = b.currentSize
	}
	b.resizes++
}

// Stats returns a snapshot of the buffer's counters.
func (b *DynamicBuffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	avg := 0.0
	if b.totalMessages > 0 {
		avg = float64(b.totalSendTime.Milliseconds()) / float64(b.totalMessages)
	}

	return BufferStats{
		CurrentSize:       b.currentSize,
		PeakSize:          b.peakSize,
		TotalMessages:     b.totalMessages,
		DroppedMessages:   b.dropped,
		Resizes:           b.resizes,
		SlowSends:         b.slowSends,
		AverageSendTimeMs: avg,
	}
}

// ResetStats clears every counter without touching the current capacity.
func (b *DynamicBuffer) ResetStats() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalMessages = 0
	b.dropped = 0
	b.resizes = 0
	b.slowSends = 0
	b.totalSendTime = 0
	b.recentSendTimes = nil
	b.recentDrops = 0
}

// NewChannel allocates a channel of T sized at the buffer's current
// capacity, the point at which a protocol framer actually commits to a
// concrete channel size for one connection.
func NewChannel[T any](b *DynamicBuffer) chan T {
	return make(chan T, b.Capacity())
}
