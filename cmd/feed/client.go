package main

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/farmtrace/provenance/common/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 30 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 25 * time.Second

	// Maximum message size allowed from peer (the feed is server push,
	// clients only answer pings)
	maxMessageSize = 512
)

// Client represents a WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Kinds the client asked for. Empty means every kind.
	kinds map[models.EventKind]bool

	send chan []byte
}

// NewClient wraps an upgraded connection
func NewClient(hub *Hub, conn *websocket.Conn, kinds map[models.EventKind]bool) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		kinds: kinds,
		send:  make(chan []byte, 512), // Sized for event bursts
	}
}

// wants reports whether the client's filter matches kind
func (c *Client) wants(kind models.EventKind) bool {
	return len(c.kinds) == 0 || c.kinds[kind]
}

// readPump drains the connection until it drops. The feed never accepts
// data from peers, but reading drives pong handling and detects disconnects
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("feed client read failed", "error", err)
			}
			return
		}
		// Inbound frames are ignored (server-push only)
	}
}

// writePump pushes hub messages and keepalive pings to the peer
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub dropped us
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Flush whatever queued up behind this message. One frame per
			// event keeps every payload a single JSON document
			n := len(c.send)
			for i := 0; i < n; i++ {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
