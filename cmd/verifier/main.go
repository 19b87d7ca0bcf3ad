package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/farmtrace/provenance/cmd/verifier/container"
	"github.com/farmtrace/provenance/cmd/verifier/routes"
	"github.com/farmtrace/provenance/common/bootstrap"
	"github.com/farmtrace/provenance/common/ledger"
	"github.com/farmtrace/provenance/common/ledger/memledger"
	commonmw "github.com/farmtrace/provenance/common/middleware"
	"github.com/farmtrace/provenance/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, DB, redis, telemetry)
	components, err := bootstrap.Setup(ctx, "verifier")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap verifier: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Pick the contract transport for this deployment
	provider, bind, err := ledgerBinding(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to select ledger transport: %v\n", err)
		os.Exit(1)
	}

	// Initialize service container (all services created once)
	serviceContainer, err := container.NewContainer(components, provider, bind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	// Mirror ledger events into local history before serving traffic
	if err := serviceContainer.Synchronizer.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start event synchronizer: %v\n", err)
		os.Exit(1)
	}
	defer serviceContainer.Synchronizer.Stop()

	// Anchor recorder consumes the event stream in the background
	recorderCtx, stopRecorder := context.WithCancel(ctx)
	defer stopRecorder()
	go func() {
		if err := serviceContainer.Recorder.Start(recorderCtx); err != nil {
			components.Logger.Error("anchor recorder stopped", "error", err)
		}
	}()

	// Initialize Echo server
	e := setupEcho()

	// Setup middleware
	setupMiddleware(e, serviceContainer)

	// Setup health check
	setupHealthCheck(e, serviceContainer)

	// Register all routes
	registerRoutes(e, serviceContainer)

	// Start server
	startServer(e, components)
}

// ledgerBinding picks the contract transport. With no deployed contract
// address configured the in-process dev ledger stands in, so the full
// stack runs locally without external infrastructure. Production
// deployments configure an address and link their own transport.
func ledgerBinding(components *bootstrap.Components) (ledger.Provider, ledger.BindFunc, error) {
	cfg := components.Config

	if cfg.Ledger.ContractAddress != "" {
		return nil, nil, fmt.Errorf("no contract transport built in for address %s", cfg.Ledger.ContractAddress)
	}

	components.Logger.Warn("no contract address configured, using in-process dev ledger")
	dev := memledger.New(cfg.Ledger.MinorUnitsPerToken, components.Logger)
	return dev, func(ctx context.Context) (ledger.Contract, error) {
		return dev, nil
	}, nil
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, c *container.Container) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())

	e.Use(commonmw.RequestMetricsMiddleware(c.Components.Metrics))

	cfg := c.Components.Config
	if cfg.RateLimit.Enabled {
		e.Use(commonmw.GlobalRateLimitMiddleware(c.RateLimiter, int64(cfg.RateLimit.GlobalPerMinute)))
	}
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, c *container.Container) {
	e.GET("/health", func(ctx echo.Context) error {
		status := http.StatusOK
		health := map[string]interface{}{
			"status":          "ok",
			"service":         "verifier",
			"sync_listening":  c.Synchronizer.Listening(),
			"pricing_enabled": c.Components.Config.Pricing.URL != "",
		}

		if err := c.Components.Health(ctx.Request().Context()); err != nil {
			status = http.StatusServiceUnavailable
			health["status"] = "degraded"
			health["error"] = err.Error()
		}

		return ctx.JSON(status, health)
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterVerifyRoutes(e, serviceContainer)
	routes.RegisterIdentifierRoutes(e, serviceContainer)
	routes.RegisterEventRoutes(e, serviceContainer)
	routes.RegisterProductRoutes(e, serviceContainer)
	routes.RegisterBatchRoutes(e, serviceContainer)
}

// startServer starts the Echo server with graceful shutdown
func startServer(e *echo.Echo, components *bootstrap.Components) {
	srv := server.New("verifier", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
