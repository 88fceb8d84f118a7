package streaming

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/foofork/riptide/internal/types"
)

// WriteNDJSON drains frames to w as newline-delimited JSON, one object per
// line, flushing after every frame so a client reading incrementally sees
// each result as soon as it is produced. Returns when frames closes or
// ctx (via the caller's request context) is cancelled upstream — the
// frame channel itself closes on disconnect, so no separate ctx check is
// needed here.
func WriteNDJSON(w http.ResponseWriter, frames <-chan types.StreamFrame) error {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	bw := bufio.NewWriter(w)

	for frame := range frames {
		if err := json.NewEncoder(bw).Encode(frame); err != nil {
			return fmt.Errorf("encode ndjson frame: %w", err)
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("flush ndjson frame: %w", err)
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return nil
}
