package types

import "time"

// FrameType tags a StreamFrame the same way the original SSE encoder
// named its `event` field: one event name per frame shape, so NDJSON,
// SSE and WebSocket framers can all switch on the same tag (spec §4.10).
type FrameType string

const (
	FrameStarted  FrameType = "started"
	FrameProgress FrameType = "progress"
	FrameResult   FrameType = "result"
	FrameError    FrameType = "error"
	FrameComplete FrameType = "complete"
)

// StreamFrame is the one wire-shape every protocol framer (NDJSON writer,
// SSE encoder, WebSocket writer) renders from, produced by the single
// frame producer feeding all three (spec §4.10).
type StreamFrame struct {
	ID        string    `json:"id"`
	Type      FrameType `json:"event"`
	Timestamp time.Time `json:"timestamp"`

	// Total is set on Started, Progress and Complete frames; Completed on
	// Progress and Complete frames.
	Total     int `json:"total,omitempty"`
	Completed int `json:"completed,omitempty"`

	// Result is set on Result frames.
	Result *PipelineResult `json:"result,omitempty"`

	// Message/Retryable are the fields of Error frames. Message also
	// carries the run summary on Complete frames and "status" on the
	// periodic status Progress frame.
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// BufferStats mirrors the counters a DynamicBuffer exposes to callers
// deciding whether to grow, shrink, or report backpressure.
type BufferStats struct {
	Capacity     int
	Len          int
	DropCount    uint64
	SentCount    uint64
	AvgSendTime  time.Duration
	SlowSends    uint64
	UnderPressure bool
}

// ConnectionMetrics tracks one streaming connection's health for the
// Backpressure Handler (spec §4.10).
type ConnectionMetrics struct {
	DroppedMessages uint64
	LastDropTime    time.Time
	AverageSendTime time.Duration
	SlowSends       uint64
}

// ConnectionState is the lifecycle of one active streaming connection.
type ConnectionState string

const (
	ConnOpening ConnectionState = "opening"
	ConnActive  ConnectionState = "active"
	ConnSlow    ConnectionState = "slow"
	ConnClosing ConnectionState = "closing"
	ConnClosed  ConnectionState = "closed"
)
