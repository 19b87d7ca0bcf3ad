package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/farmtrace/provenance/common/logger"
	"github.com/farmtrace/provenance/common/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is public and strictly server push, so any origin may attach
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server handles WebSocket upgrades for the event feed
type Server struct {
	hub *Hub
	log *logger.Logger
}

// NewServer creates a new Server instance
func NewServer(hub *Hub, log *logger.Logger) *Server {
	return &Server{
		hub: hub,
		log: log,
	}
}

// HandleWebSocket upgrades the connection and registers the client
// URL: /ws?kinds=ProductCreated,BatchPurchased (no filter means every kind)
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	kinds, err := parseKinds(r.URL.Query().Get("kinds"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(s.hub, conn, kinds)
	s.hub.register <- client

	s.log.Info("feed client connected", "remote", r.RemoteAddr, "filtered_kinds", len(kinds))

	// Start client goroutines
	go client.writePump()
	go client.readPump()
}

// parseKinds parses the comma separated kind filter. An empty filter
// subscribes to everything; an unknown kind is a caller mistake.
func parseKinds(raw string) (map[models.EventKind]bool, error) {
	if raw == "" {
		return nil, nil
	}

	kinds := make(map[models.EventKind]bool)
	for _, part := range strings.Split(raw, ",") {
		kind := models.EventKind(strings.TrimSpace(part))
		if kind == "" {
			continue
		}
		if !models.KnownKind(kind) {
			return nil, fmt.Errorf("unknown event kind %q", kind)
		}
		kinds[kind] = true
	}
	return kinds, nil
}
