package main

import (
	"context"
	"sync"

	"github.com/farmtrace/provenance/common/logger"
	"github.com/farmtrace/provenance/common/metrics"
	"github.com/farmtrace/provenance/common/models"
)

// Message is one serialized event ready for fan-out.
type Message struct {
	Kind models.EventKind
	Data []byte
}

// Hub maintains the set of connected feed clients and broadcasts events
type Hub struct {
	clients map[*Client]bool
	mutex   sync.RWMutex

	// Channel for registering clients
	register chan *Client

	// Channel for unregistering clients
	unregister chan *Client

	// Channel for broadcasting messages
	broadcast chan *Message

	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewHub creates a new Hub instance
func NewHub(log *logger.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		log:        log,
		metrics:    m,
	}
}

// Run owns the client set until ctx is cancelled. Every map mutation happens
// on this goroutine; the mutex only covers reads from other goroutines.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("feed hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastEvent(message)
		}
	}
}

// registerClient adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	h.metrics.FeedClientConnected()
	h.log.Debug("feed client registered", "total", len(h.clients))
}

// unregisterClient drops a client if it is still tracked. Slow clients get
// removed by broadcastEvent first, so the readPump's unregister can arrive
// for a client that is already gone.
func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.metrics.FeedClientDisconnected()
	h.log.Debug("feed client unregistered", "total", len(h.clients))
}

// broadcastEvent sends a message to every client whose filter matches it
func (h *Hub) broadcastEvent(message *Message) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		if !client.wants(message.Kind) {
			continue
		}
		select {
		case client.send <- message.Data:
			// Message queued successfully
		default:
			// The send buffer is full, so the peer is not keeping up.
			// Drop it rather than stall every other client.
			h.log.Warn("feed client too slow, dropping connection", "kind", message.Kind)
			delete(h.clients, client)
			close(client.send)
			h.metrics.FeedClientDisconnected()
		}
	}
}

// closeAll disconnects every client. Closed send channels make the
// writePumps deliver close frames before the connections drop.
func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
		h.metrics.FeedClientDisconnected()
	}
	h.log.Info("feed hub stopped")
}

// ClientCount returns the number of active connections
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.clients)
}
