package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/farmtrace/provenance/common/bootstrap"
	httpserver "github.com/farmtrace/provenance/common/server"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bootstrap common components (config, logger, redis, telemetry).
	// The feed keeps no state of its own, so no database.
	components, err := bootstrap.Setup(ctx, "feed", bootstrap.WithoutDB())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap feed: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Hub owns the client set
	hub := NewHub(components.Logger, components.Metrics)
	go hub.Run(ctx)

	// Bridge redis pub/sub into the hub
	subscriber := NewRedisSubscriber(components.Redis, hub, components.Logger)
	go func() {
		if err := subscriber.Start(ctx); err != nil {
			components.Logger.Error("event subscriber stopped", "error", err)
		}
	}()

	// HTTP surface: the websocket endpoint plus a health probe
	ws := NewServer(hub, components.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.HandleWebSocket)
	mux.HandleFunc("/health", healthHandler(components, hub))

	srv := httpserver.New("feed", components.Config.Service.Port, mux, components.Logger)

	// Cancelling the root context stops the subscriber and makes the hub
	// send close frames to every peer before the listener goes away
	srv.OnShutdown(cancel)

	if err := srv.Start(); err != nil {
		components.Logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// healthHandler reports liveness plus the connected client count.
func healthHandler(components *bootstrap.Components, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		status := http.StatusOK
		body := map[string]interface{}{
			"status":  "healthy",
			"service": "feed",
			"clients": hub.ClientCount(),
		}
		if err := components.Health(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["error"] = err.Error()
		}

		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}
