package streaming

import (
	"sync"
	"time"

	"github.com/foofork/riptide/internal/types"
)

// BackpressureHandler decides whether one connection's next frame should
// be dropped and tracks that connection's health for the capabilities
// surface (spec §6.4's degradation score inputs).
type BackpressureHandler struct {
	connID string
	buffer *DynamicBuffer

	mu            sync.Mutex
	metrics       types.ConnectionMetrics
	sendCount     int64
	totalSendTime time.Duration
}

// NewBackpressureHandler builds a handler for one connection, sharing buf
// with whatever protocol framer owns that connection's delivery channel.
func NewBackpressureHandler(connID string, buf *DynamicBuffer) *BackpressureHandler {
	return &BackpressureHandler{connID: connID, buffer: buf}
}

// ShouldDropMessage reports whether a frame should be dropped given the
// channel's current queue depth, and records the drop against both the
// handler's own metrics and the shared buffer. Per spec §4.10,
// "Backpressure drops only progress/status; result/completion await
// drain" — callers must only invoke this for droppable frame kinds.
func (h *BackpressureHandler) ShouldDropMessage(queueDepth int) bool {
	threshold := h.dropThreshold()
	if queueDepth <= threshold {
		return false
	}

	h.mu.Lock()
	h.metrics.DroppedMessages++
	h.metrics.LastDropTime = time.Now()
	h.mu.Unlock()

	h.buffer.RecordDrop()
	return true
}

// dropThreshold is the adaptive queue-depth cutoff: a buffer already
// under backpressure drops far more eagerly than one running clean.
func (h *BackpressureHandler) dropThreshold() int {
	capacity := h.buffer.Capacity()
	if h.buffer.IsUnderBackpressure() {
		return capacity / 10
	}
	return capacity
}

// RecordSendTime records one successful send's latency against both the
// handler's own running average and the shared buffer's resize policy.
func (h *BackpressureHandler) RecordSendTime(d time.Duration) {
	h.buffer.RecordSend(d)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.sendCount++
	h.totalSendTime += d
	h.metrics.AverageSendTime = h.totalSendTime / time.Duration(h.sendCount)
	if d >= h.buffer.cfg.SlowSendThreshold {
		h.metrics.SlowSends++
	}
}

// IsConnectionSlow reports whether this connection's own slow-send count
// has crossed the buffer's MaxSlowSends threshold, independent of the
// shared buffer's own backpressure state.
func (h *BackpressureHandler) IsConnectionSlow() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return int(h.metrics.SlowSends) > h.buffer.cfg.MaxSlowSends
}

// Metrics returns a snapshot of this connection's health.
func (h *BackpressureHandler) Metrics() types.ConnectionMetrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.metrics
}
