// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/mosaicus/internal/config"
	"github.com/tomtom215/mosaicus/internal/logging"
)

const (
	defaultWriteWait    = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	defaultMaxMsgSize   = 64 << 10

	// pongWait must exceed the ping interval or healthy clients get
	// disconnected between pings.
	pongWaitFactor = 2
)

// clientIDCounter assigns monotonically increasing ids so broadcast and
// shutdown iterate clients in a stable order.
var clientIDCounter atomic.Uint64

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	id        uint64
	contextID string
	hub       *Hub
	conn      *websocket.Conn
	send      chan Message
	limiter   *rate.Limiter

	writeWait    time.Duration
	pingInterval time.Duration
	maxMsgSize   int64
}

// NewClient creates a client subscribed to one context. The rate limiter
// bounds inbound messages per connection; clients that flood are
// disconnected.
func NewClient(hub *Hub, conn *websocket.Conn, contextID string, cfg config.WebsocketConfig) *Client {
	writeWait := cfg.WriteTimeout
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	pingInterval := cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	maxMsgSize := cfg.MaxMessageSize
	if maxMsgSize <= 0 {
		maxMsgSize = defaultMaxMsgSize
	}
	msgRate := cfg.MessageRate
	if msgRate <= 0 {
		msgRate = 20
	}
	burst := cfg.MessageBurst
	if burst <= 0 {
		burst = 40
	}
	return &Client{
		id:           clientIDCounter.Add(1),
		contextID:    contextID,
		hub:          hub,
		conn:         conn,
		send:         make(chan Message, 256),
		limiter:      rate.NewLimiter(rate.Limit(msgRate), burst),
		writeWait:    writeWait,
		pingInterval: pingInterval,
		maxMsgSize:   maxMsgSize,
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// ContextID returns the context this client is subscribed to.
func (c *Client) ContextID() string {
	return c.contextID
}

// readPump pumps inbound messages from the connection. Clients only
// send pings and keepalive traffic; anything beyond the rate limit gets
// the connection closed.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	pongWait := c.pingInterval * pongWaitFactor
	c.conn.SetReadLimit(c.maxMsgSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("set websocket read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Msg("unexpected websocket close")
			}
			break
		}

		if !c.limiter.Allow() {
			logging.Warn().
				Uint64("client_id", c.id).
				Str("context_id", c.contextID).
				Msg("websocket client exceeded message rate, disconnecting")
			break
		}

		if msg.Type == MessageTypePing {
			select {
			case c.send <- Message{Type: MessageTypePong}:
			default:
			}
		}
	}
}

// writePump pumps hub messages to the connection and keeps the
// connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				logging.Error().Err(err).Msg("set websocket write deadline")
				return
			}
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Msg("write websocket message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
