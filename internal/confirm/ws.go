package confirm

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// resolution is what a UI sends back over the socket.
type resolution struct {
	ID       string `json:"id"`
	Approved bool   `json:"approved"`
}

// WSHandler exposes the hub over a websocket: on connect the client receives
// every currently pending request, then live pending/resolved events, and may
// send {id, approved} frames to settle requests.
type WSHandler struct {
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a handler bound to the hub.
func NewWSHandler(hub *Hub, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The confirmation surface is same-host tooling.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	// Replay the current pending set before streaming live events.
	for _, req := range h.hub.Pending() {
		if err := conn.WriteJSON(Event{Kind: "pending", Request: req}); err != nil {
			h.logger.Warn("failed to replay pending confirmation", "error", err)
			return
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var res resolution
			if err := conn.ReadJSON(&res); err != nil {
				return
			}
			if err := h.hub.Resolve(res.ID, res.Approved); err != nil {
				h.logger.Warn("websocket resolution rejected", "id", res.ID, "error", err)
			}
		}
	}()

	for {
		select {
		case ev := <-events:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
