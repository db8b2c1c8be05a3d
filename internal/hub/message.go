package hub

import "time"

// MessageType identifies websocket messages
type MessageType string

const (
	// Server to client
	MessageTypeMarketView   MessageType = "market_view"
	MessageTypeMarketDeltas MessageType = "market_deltas"
	MessageTypeHeartbeat    MessageType = "heartbeat"
	MessageTypeError        MessageType = "error"

	// Client to server
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
)

// ServerMessage is sent to websocket clients
type ServerMessage struct {
	Type      MessageType `json:"type"`
	NetworkID int64       `json:"networkId,omitempty"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`

	// Routing only, never sent
	sports []string
	games  []string
}

// ClientMessage is received from websocket clients
type ClientMessage struct {
	Type    MessageType            `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// SubscriptionFilter narrows what a client receives. Empty fields match all.
type SubscriptionFilter struct {
	Networks []int64  `json:"networks,omitempty"`
	Sports   []string `json:"sports,omitempty"`
	Games    []string `json:"games,omitempty"`
}

// ErrorMessage is the payload of an error message
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectionStats is the payload of a heartbeat reply
type ConnectionStats struct {
	ClientID          string    `json:"clientId"`
	ConnectedAt       time.Time `json:"connectedAt"`
	MessagesSent      int64     `json:"messagesSent"`
	MessagesReceived  int64     `json:"messagesReceived"`
	BufferSize        int       `json:"bufferSize"`
	BufferUtilization float64   `json:"bufferUtilization"`
}
