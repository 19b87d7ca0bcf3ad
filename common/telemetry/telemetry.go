package telemetry

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"runtime"
	"time"

	"github.com/farmtrace/provenance/common/logger"
)

// sampleInterval paces the runtime heartbeat log.
const sampleInterval = time.Minute

// Telemetry holds observability components
type Telemetry struct {
	log         *logger.Logger
	pprofAddr   string
	metricsAddr string

	enablePprof    bool
	enableMetrics  bool
	metricsHandler http.Handler

	pprofServer   *http.Server
	metricsServer *http.Server
	stopSampler   context.CancelFunc
}

// New creates telemetry components. The metrics handler is the prometheus
// exposition handler owned by the service's metrics registry.
func New(pprofPort, metricsPort int, enablePprof, enableMetrics bool, metricsHandler http.Handler, log *logger.Logger) *Telemetry {
	return &Telemetry{
		log:            log,
		pprofAddr:      fmt.Sprintf("localhost:%d", pprofPort),
		metricsAddr:    fmt.Sprintf(":%d", metricsPort),
		enablePprof:    enablePprof,
		enableMetrics:  enableMetrics,
		metricsHandler: metricsHandler,
	}
}

// Start starts telemetry endpoints
func (t *Telemetry) Start(ctx context.Context) error {
	if t.enablePprof {
		// pprof handlers self-register on the default mux
		t.pprofServer = &http.Server{Addr: t.pprofAddr, Handler: http.DefaultServeMux}
		go func() {
			t.log.Info("pprof server starting", "addr", t.pprofAddr)
			if err := t.pprofServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				t.log.Error("pprof server error", "error", err)
			}
		}()
	}

	if t.enableMetrics && t.metricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", t.metricsHandler)
		t.metricsServer = &http.Server{Addr: t.metricsAddr, Handler: mux}
		go func() {
			t.log.Info("metrics server starting", "addr", t.metricsAddr)
			if err := t.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				t.log.Error("metrics server error", "error", err)
			}
		}()
	}

	samplerCtx, cancel := context.WithCancel(context.Background())
	t.stopSampler = cancel
	go t.sampleRuntime(samplerCtx)

	return nil
}

// Stop shuts down telemetry endpoints.
func (t *Telemetry) Stop(ctx context.Context) {
	if t.stopSampler != nil {
		t.stopSampler()
	}

	for _, srv := range []*http.Server{t.pprofServer, t.metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			t.log.Warn("telemetry server shutdown", "addr", srv.Addr, "error", err)
		}
	}
}

// sampleRuntime logs a periodic runtime heartbeat so incident timelines
// include goroutine and heap history even when nobody scraped /metrics.
func (t *Telemetry) sampleRuntime(ctx context.Context) {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			t.log.Debug("runtime sample",
				"goroutines", runtime.NumGoroutine(),
				"heap_alloc_mb", m.HeapAlloc/1024/1024,
				"heap_objects", m.HeapObjects,
				"gc_cycles", m.NumGC,
			)
		}
	}
}

// RecordDuration records operation duration
func (t *Telemetry) RecordDuration(operation string, start time.Time) {
	duration := time.Since(start)
	t.log.Debug("operation completed",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	)
}
