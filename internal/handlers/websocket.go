package handlers

import (
	"net/http"

	"github.com/XavierBriggs/Tyche/internal/hub"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// HandleWebSocket upgrades HTTP connections to WebSocket
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("[Hub] websocket upgrade error: %v", err)
		return
	}

	clientID := uuid.New().String()
	c := hub.NewClient(clientID, conn, h.hub)
	h.hub.Register(c)

	// Pumps run on the server context, not the request context
	go c.WritePump(h.ctx)
	go c.ReadPump(h.ctx)
}

// checkOrigin accepts same-origin requests and the configured CORS origins
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
