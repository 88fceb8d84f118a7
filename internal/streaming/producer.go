package streaming

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foofork/riptide/internal/orchestrator"
	"github.com/foofork/riptide/internal/types"
)

// FrameProducer drives one Submit(streaming) request through the Batch
// Runner and renders its completion-order IndexedResult stream into the
// frame sequence spec §4.10 names: metadata once, interleaved progress/
// result per URL, an optional periodic status for batches over 20 URLs,
// then one terminal completion frame. Every protocol framer (NDJSON, SSE,
// WebSocket) consumes the same frame channel and differs only in how it
// writes a StreamFrame to the wire.
type FrameProducer struct {
	runner *orchestrator.Runner
	logger *slog.Logger
}

// NewFrameProducer builds a producer driving runner.
func NewFrameProducer(runner *orchestrator.Runner, logger *slog.Logger) *FrameProducer {
	return &FrameProducer{runner: runner, logger: logger.With("component", "frame_producer")}
}

// Produce starts req and returns a channel of frames for one connection.
// handler gates progress/status frames for backpressure; result and
// completion frames are never dropped, matching spec §4.10's "result/
// completion await drain". ctx cancellation (client disconnect) stops the
// producer cooperatively: in-flight URL pipelines are not force-killed,
// but no further frames are read from the runner once ctx is done.
func (p *FrameProducer) Produce(ctx context.Context, req *types.CrawlRequest, handler *BackpressureHandler) (<-chan types.StreamFrame, error) {
	results, err := p.runner.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	out := NewChannel[types.StreamFrame](handler.buffer)
	ids := &frameIDs{}

	go func() {
		defer close(out)

		total := len(req.URLs)
		start := time.Now()

		p.emit(ctx, out, handler, false, types.StreamFrame{
			ID:        ids.next(),
			Type:      types.FrameStarted,
			Timestamp: time.Now(),
			Total:     total,
		})

		completed, successful, failed, fromCache := 0, 0, 0, 0

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("stream producer stopped: context done")
				return
			case ir, ok := <-results:
				if !ok {
					p.emit(ctx, out, handler, false, types.StreamFrame{
						ID:        ids.next(),
						Type:      types.FrameComplete,
						Timestamp: time.Now(),
						Total:     total,
						Completed: completed,
						Message:   completionSummary(total, successful, failed, fromCache, time.Since(start)),
					})
					return
				}

				completed++
				if ir.Result.Success() {
					successful++
				} else {
					failed++
				}
				if ir.Result.FromCache {
					fromCache++
				}

				p.emit(ctx, out, handler, true, types.StreamFrame{
					ID:        ids.next(),
					Type:      types.FrameProgress,
					Timestamp: time.Now(),
					Total:     total,
					Completed: completed,
				})

				p.emit(ctx, out, handler, false, types.StreamFrame{
					ID:        ids.next(),
					Type:      types.FrameResult,
					Timestamp: time.Now(),
					Result:    ir.Result,
				})

				if total > 20 && completed%10 == 0 {
					p.emit(ctx, out, handler, true, types.StreamFrame{
						ID:        ids.next(),
						Type:      types.FrameProgress,
						Timestamp: time.Now(),
						Total:     total,
						Completed: completed,
						Message:   "status",
					})
				}
			}
		}
	}()

	return out, nil
}

// emit writes frame to out, honoring handler's drop policy for droppable
// frames (progress/status). Result and completion frames always block
// until the consumer drains them or ctx is cancelled.
func (p *FrameProducer) emit(ctx context.Context, out chan<- types.StreamFrame, handler *BackpressureHandler, droppable bool, frame types.StreamFrame) {
	if droppable && handler.ShouldDropMessage(len(out)) {
		p.logger.Debug("dropped frame under backpressure", "type", frame.Type)
		return
	}

	sendStart := time.Now()
	select {
	case out <- frame:
		handler.RecordSendTime(time.Since(sendStart))
	case <-ctx.Done():
	}
}

func completionSummary(total, successful, failed, fromCache int, elapsed time.Duration) string {
	return fmt.Sprintf("total=%d successful=%d failed=%d from_cache=%d elapsed=%s",
		total, successful, failed, fromCache, elapsed.Round(time.Millisecond))
}

// frameIDs hands out the monotonic per-connection ids SSE resumability
// keys off (spec §4.10: "SSE resumability via monotonic frame ids").
type frameIDs struct {
	n int
}

func (f *frameIDs) next() string {
	id := f.n
	f.n++
	return fmt.Sprintf("%d", id)
}
