// Package hub fans market views and deltas out to websocket subscribers.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/XavierBriggs/Tyche/internal/delta"
	"github.com/XavierBriggs/Tyche/internal/loader"
	"github.com/XavierBriggs/Tyche/internal/metrics"
	"github.com/golang/glog"
)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	clients   map[*Client]bool
	clientsMu sync.RWMutex

	broadcast  chan ServerMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a hub. m may be nil.
func New(m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan ServerMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		metrics:    m,
		now:        time.Now,
	}
}

// Run is the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case c := <-h.register:
			h.registerClient(c)

		case c := <-h.unregister:
			h.unregisterClient(c)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues a message for every matching client
func (h *Hub) Broadcast(msg ServerMessage) {
	select {
	case h.broadcast <- msg:
	default:
		glog.Warning("[Hub] broadcast buffer full, dropping message")
	}
}

// PublishView broadcasts a loader view summary
func (h *Hub) PublishView(v loader.View) {
	h.Broadcast(ServerMessage{
		Type:      MessageTypeMarketView,
		NetworkID: v.NetworkID,
		Payload:   v.Summarize(h.now()),
		Timestamp: h.now(),
	})
}

// PublishDeltas broadcasts the market changes of one refresh
func (h *Hub) PublishDeltas(networkID int64, deltas []delta.Delta) {
	if len(deltas) == 0 {
		return
	}

	sports := make([]string, 0)
	games := make([]string, 0, len(deltas))
	seenSport := make(map[string]bool)
	for _, d := range deltas {
		games = append(games, d.GameID)
		if d.Market != nil && !seenSport[d.Market.Sport] {
			seenSport[d.Market.Sport] = true
			sports = append(sports, d.Market.Sport)
		}
	}

	h.Broadcast(ServerMessage{
		Type:      MessageTypeMarketDeltas,
		NetworkID: networkID,
		Payload:   deltas,
		Timestamp: h.now(),
		sports:    sports,
		games:     games,
	})
}

// ClientCount returns the number of active clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(c *Client) {
	h.clientsMu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.clientsMu.Unlock()

	h.metrics.SetWebsocketClients(n)
	glog.Infof("[Hub] client %s connected (total: %d)", c.ID, n)
}

func (h *Hub) unregisterClient(c *Client) {
	h.clientsMu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.Send)
	}
	n := len(h.clients)
	h.clientsMu.Unlock()

	if ok {
		h.metrics.SetWebsocketClients(n)
		glog.Infof("[Hub] client %s disconnected (total: %d)", c.ID, n)
	}
}

// deliver sends a message to every client whose filter matches
func (h *Hub) deliver(msg ServerMessage) {
	h.clientsMu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	for _, c := range clients {
		if !c.Matches(msg) {
			continue
		}
		if !c.TrySend(msg) {
			// Client buffer full, they're too slow
			glog.Warningf("[Hub] client %s buffer full, disconnecting", c.ID)
			h.unregisterClient(c)
		}
	}
}

func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	glog.Infof("[Hub] shutting down (%d active clients)", len(h.clients))
	for c := range h.clients {
		close(c.Send)
		delete(h.clients, c)
	}
	h.metrics.SetWebsocketClients(0)
}
