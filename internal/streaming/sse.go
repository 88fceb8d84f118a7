package streaming

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/foofork/riptide/internal/types"
)

// retryFrames get a client reconnect hint; spec §4.10 names metadata
// (Started) and terminal completion as the frames worth telling a client
// how soon to retry after a drop.
var retryFrames = map[types.FrameType]bool{
	types.FrameStarted:  true,
	types.FrameComplete: true,
}

// WriteSSE drains frames to w as Server-Sent Events, one `event`/`data`/
// `id` block per frame. The monotonic frame.ID doubles as the SSE event
// id a client echoes back via Last-Event-ID on reconnect; replaying
// frames beyond a connection's own retention window is not supported
// (spec §4.10).
func WriteSSE(w http.ResponseWriter, frames <-chan types.StreamFrame) error {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)

	for frame := range frames {
		data, err := json.Marshal(frame)
		if err != nil {
			return fmt.Errorf("marshal sse frame: %w", err)
		}

		if _, err := fmt.Fprintf(w, "event: %s\n", frame.Type); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "id: %s\n", frame.ID); err != nil {
			return err
		}
		if retryFrames[frame.Type] {
			if _, err := fmt.Fprint(w, "retry: 5000\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}

		if flusher != nil {
			flusher.Flush()
		}
	}
	return nil
}
