package streaming

import (
	"log/slog"
	"net/http"

	"github.com/foofork/riptide/internal/types"
	"github.com/gorilla/websocket"
)

// upgrader accepts any origin; Submit(streaming)'s WebSocket surface is
// an API endpoint, not a browser-facing page, so there is no same-origin
// cookie risk to police here the way a noisefs-style dashboard would.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// WriteWebSocket upgrades r's connection and drains frames to it as JSON
// text messages, one per frame. A blocking read loop on the same
// connection is the disconnect detector (spec §4.10's "disconnect
// cancels cooperatively"): once the client closes or the connection
// errors, cancel stops the frame producer upstream.
func WriteWebSocket(w http.ResponseWriter, r *http.Request, frames <-chan types.StreamFrame, cancel func(), logger *slog.Logger) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for frame := range frames {
		if err := conn.WriteJSON(frame); err != nil {
			logger.Debug("websocket write failed, stopping producer", "error", err)
			cancel()
			return err
		}
	}
	return nil
}
