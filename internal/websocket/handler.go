package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// Serve upgrades the request and runs the connection as a client of topic
// until it closes. snap, if non-nil, builds the first message once the
// client is registered. Callers authorize the request before calling Serve.
func Serve(w http.ResponseWriter, r *http.Request, hub *Hub, topic string, snap Snapshot, originPatterns []string) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		OriginPatterns: originPatterns,
	})
	if err != nil {
		slog.Warn("websocket accept", "error", err)
		return
	}

	NewClient(hub, conn, topic).Run(r.Context(), snap)
}
