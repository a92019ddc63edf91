package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// Snapshot produces the first frame a new client receives, so it starts from
// current state instead of waiting for the next change.
type Snapshot func(ctx context.Context) (Message, error)

type HandlerOptions struct {
	// OriginPatterns lists extra hosts allowed to connect. Same-origin
	// requests are always accepted.
	OriginPatterns []string
	Snapshot       Snapshot
}

// HandleWebSocket upgrades the request and runs it as a Hub client until the
// connection closes.
func HandleWebSocket(hub *Hub, logger *slog.Logger, opts HandlerOptions) http.HandlerFunc {
	logger = logger.With("component", "websocket")
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			logger.Warn("accept failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		client := NewClient(hub, conn)
		if opts.Snapshot != nil {
			if msg, err := opts.Snapshot(r.Context()); err != nil {
				logger.Error("build snapshot", "error", err)
			} else if data, err := json.Marshal(msg); err == nil {
				client.send <- data
			}
		}

		logger.Debug("client connected", "remote", r.RemoteAddr, "clients", hub.ClientCount()+1)
		client.Run(r.Context())
		logger.Debug("client disconnected", "remote", r.RemoteAddr)
	}
}
