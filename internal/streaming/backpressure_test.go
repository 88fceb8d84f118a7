package streaming

import (
	"testing"
	"time"
)

func TestBackpressureHandlerLowQueueDoesNotDrop(t *testing.T) {
	buf := NewDynamicBuffer() // default capacity 256
	h := NewBackpressureHandler("test-conn", buf)

	if h.ShouldDropMessage(50) {
		t.Error("ShouldDropMessage(50) = true, want false for a healthy low queue depth")
	}
}

func TestBackpressureHandlerHighQueueDrops(t *testing.T) {
	buf := NewDynamicBufferWithConfig(BufferConfig{InitialSize: 100, MinSize: 10, MaxSize: 1000,
		GrowthFactor: 2, ShrinkFactor: 0.5, SlowSendThreshold: time.Second, MaxSlowSends: 5, BackpressureWindow: 10})
	h := NewBackpressureHandler("test-conn", buf)

	if !h.ShouldDropMessage(1500) {
		t.Error("ShouldDropMessage(1500) = false, want true for a queue depth far past capacity")
	}

	metrics := h.Metrics()
	if metrics.DroppedMessages != 1 {
		t.Errorf("DroppedMessages = %d, want 1", metrics.DroppedMessages)
	}
	if metrics.LastDropTime.IsZero() {
		t.Error("LastDropTime is zero, want a recorded drop time")
	}
}

func TestBackpressureHandlerMarksConnectionSlow(t *testing.T) {
	buf := NewDynamicBufferWithConfig(BufferConfig{InitialSize: 256, MinSize: 32, MaxSize: 1024,
		GrowthFactor: 2, ShrinkFactor: 0.9, SlowSendThreshold: 100 * time.Millisecond, MaxSlowSends: 10, BackpressureWindow: 200})
	h := NewBackpressureHandler("adaptive-test", buf)

	for i := 0; i < 95; i++ {
		h.RecordSendTime(50 * time.Millisecond)
	}
	if h.IsConnectionSlow() {
		t.Error("IsConnectionSlow() = true after fast sends, want false")
	}

	for i := 0; i < 20; i++ {
		h.RecordSendTime(200 * time.Millisecond)
	}
	if !h.IsConnectionSlow() {
		t.Error("IsConnectionSlow() = false after slow sends, want true")
	}

	metrics := h.Metrics()
	if metrics.AverageSendTime <= 50*time.Millisecond {
		t.Errorf("AverageSendTime = %s, want it pulled up by the slow sends", metrics.AverageSendTime)
	}
	if metrics.SlowSends <= 10 {
		t.Errorf("SlowSends = %d, want > 10", metrics.SlowSends)
	}
}
