package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 1024

	// Buffer size for outbound messages
	sendBufferSize = 64
)

// Conn is the part of a websocket connection a client uses
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one websocket subscriber
type Client struct {
	ID   string
	conn Conn
	Send chan ServerMessage // closed by the hub on unregister
	hub  *Hub

	filter   SubscriptionFilter
	filterMu sync.RWMutex

	connectedAt      time.Time
	messagesSent     int64
	messagesReceived int64
	mu               sync.Mutex
}

// NewClient creates a client bound to a hub
func NewClient(id string, conn Conn, h *Hub) *Client {
	return &Client{
		ID:          id,
		conn:        conn,
		Send:        make(chan ServerMessage, sendBufferSize),
		hub:         h,
		connectedAt: time.Now(),
	}
}

// ReadPump reads client messages until the connection drops
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg ClientMessage
			if err := c.conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					glog.Warningf("[Hub] client %s unexpected close: %v", c.ID, err)
				}
				return
			}

			c.mu.Lock()
			c.messagesReceived++
			c.mu.Unlock()

			c.handleClientMessage(msg)
		}
	}
}

// WritePump writes hub messages and keepalive pings to the connection
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				glog.Warningf("[Hub] client %s write error: %v", c.ID, err)
				return
			}

			c.mu.Lock()
			c.messagesSent++
			c.mu.Unlock()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues a message without blocking; false means the buffer is full
func (c *Client) TrySend(msg ServerMessage) bool {
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

// SetFilter replaces the subscription filter
func (c *Client) SetFilter(filter SubscriptionFilter) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	c.filter = filter
}

// Matches reports whether a message passes the client's filter
func (c *Client) Matches(msg ServerMessage) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()

	f := c.filter
	if len(f.Networks) > 0 && msg.NetworkID != 0 {
		found := false
		for _, id := range f.Networks {
			if id == msg.NetworkID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	// Sport and game filters only narrow messages that carry routing keys
	if len(f.Sports) > 0 && len(msg.sports) > 0 && !overlaps(f.Sports, msg.sports) {
		return false
	}
	if len(f.Games) > 0 && len(msg.games) > 0 && !overlaps(f.Games, msg.games) {
		return false
	}

	return true
}

// Stats returns connection statistics
func (c *Client) Stats() ConnectionStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return ConnectionStats{
		ClientID:          c.ID,
		ConnectedAt:       c.connectedAt,
		MessagesSent:      c.messagesSent,
		MessagesReceived:  c.messagesReceived,
		BufferSize:        sendBufferSize,
		BufferUtilization: float64(len(c.Send)) / float64(sendBufferSize) * 100.0,
	}
}

func (c *Client) handleClientMessage(msg ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.handleSubscribe(msg.Payload)
	case MessageTypeUnsubscribe:
		c.SetFilter(SubscriptionFilter{})
		glog.V(1).Infof("[Hub] client %s unsubscribed", c.ID)
	case MessageTypeHeartbeat:
		c.TrySend(ServerMessage{Type: MessageTypeHeartbeat, Payload: c.Stats(), Timestamp: time.Now()})
	default:
		c.sendError("unknown_message_type", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func (c *Client) handleSubscribe(payload map[string]interface{}) {
	filterJSON, err := json.Marshal(payload)
	if err != nil {
		c.sendError("invalid_filter", "failed to parse filter")
		return
	}

	var filter SubscriptionFilter
	if err := json.Unmarshal(filterJSON, &filter); err != nil {
		c.sendError("invalid_filter", "failed to parse filter")
		return
	}

	c.SetFilter(filter)
	glog.V(1).Infof("[Hub] client %s subscribed: networks=%v sports=%v games=%v",
		c.ID, filter.Networks, filter.Sports, filter.Games)
}

func (c *Client) sendError(code, message string) {
	c.TrySend(ServerMessage{
		Type:      MessageTypeError,
		Payload:   ErrorMessage{Code: code, Message: message},
		Timestamp: time.Now(),
	})
}

func overlaps(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}
