package bootstrap

import (
	"context"
	"fmt"

	"github.com/farmtrace/provenance/common/config"
	"github.com/farmtrace/provenance/common/db"
	"github.com/farmtrace/provenance/common/logger"
	"github.com/farmtrace/provenance/common/metrics"
	"github.com/farmtrace/provenance/common/redis"
	"github.com/farmtrace/provenance/common/telemetry"
)

// Setup initializes all service components
// This is the main entry point for all services
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	// Apply options
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	host := metrics.CaptureHostInfo()
	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
		"host", host.Hostname,
		"go", host.GoVersion,
		"container", host.ContainerRuntime,
	)

	// 3. Initialize database (if not skipped)
	if !options.skipDB {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		// Register cleanup
		components.addCleanup(func() error {
			components.Logger.Info("closing database connection")
			components.DB.Close()
			return nil
		})

		// Run DB init hook if provided
		if options.dbInitHook != nil {
			components.Logger.Info("running database init hook")
			if err := options.dbInitHook(components.DB); err != nil {
				components.Shutdown(ctx) // Cleanup what we've initialized
				return nil, fmt.Errorf("database init hook failed: %w", err)
			}
		}
	}

	// 4. Initialize redis (if not skipped)
	if !options.skipRedis {
		components.Logger.Info("connecting to redis",
			"addr", components.Config.RedisAddr(),
		)
		components.Redis, err = redis.Connect(ctx, components.Config, components.Logger)
		if err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		// Register cleanup
		components.addCleanup(func() error {
			components.Logger.Info("closing redis connection")
			return components.Redis.Close()
		})
	}

	// 5. Initialize metrics and telemetry (if not skipped)
	if !options.skipTelemetry {
		components.Metrics = metrics.New(serviceName)

		if components.Config.Telemetry.EnablePprof || components.Config.Telemetry.EnableMetrics {
			components.Logger.Info("initializing telemetry")
			components.Telemetry = telemetry.New(
				components.Config.Telemetry.PprofPort,
				components.Config.Telemetry.MetricsPort,
				components.Config.Telemetry.EnablePprof,
				components.Config.Telemetry.EnableMetrics,
				components.Metrics.Handler(),
				components.Logger,
			)

			if err := components.Telemetry.Start(ctx); err != nil {
				components.Logger.Warn("failed to start telemetry", "error", err)
				// Don't fail startup if telemetry fails
			} else {
				components.addCleanup(func() error {
					components.Telemetry.Stop(context.Background())
					return nil
				})
			}
		}
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"telemetry", components.Telemetry != nil,
	)

	return components, nil
}

// MustSetup is like Setup but panics on error
// Useful for services that can't recover from initialization failure
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}
