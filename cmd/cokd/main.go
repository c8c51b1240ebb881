// cokd is the reverse-tunnel server daemon.
//
// Startup sequence, mirroring the teacher's main.go:
//  1. Load configuration from the environment.
//  2. Initialise logger and metrics.
//  3. Create the auth service, connection manager, request tracker, and rate
//     limiter.
//  4. Start the control-plane listener (WebSocket) and the public HTTP
//     ingress listener.
//  5. Start the ops/health server and its metrics ticker.
//  6. Block until SIGINT/SIGTERM, then shut every component down in order.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/annurdien/cok/auth"
	"github.com/annurdien/cok/config"
	"github.com/annurdien/cok/controlplane"
	"github.com/annurdien/cok/dashboard"
	"github.com/annurdien/cok/ingress"
	"github.com/annurdien/cok/logger"
	"github.com/annurdien/cok/metrics"
	"github.com/annurdien/cok/ratelimit"
	"github.com/annurdien/cok/registry"
	"github.com/annurdien/cok/shutdown"
	"github.com/annurdien/cok/tracker"
)

func main() {
	log := logger.New(logger.LevelInfo)
	log.Info("cokd starting up")

	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Errorf("failed to load configuration: %v", err)
		os.Exit(1)
	}
	log.Infof("configuration loaded: base_domain=%q max_tunnels=%d", cfg.BaseDomain, cfg.MaxTunnels)

	m := metrics.New()
	authSvc := auth.New(cfg.APIKeySecret)
	reg := registry.NewManager(cfg.MaxTunnels)
	trk := tracker.New(cfg.RequestTimeout, func(requestID string) {
		log.Debugf("orphan response for request_id=%s", requestID)
	})
	limiter := ratelimit.New(cfg.RateLimitCapacity, cfg.RateLimitRefillPerSecond)
	connectLimiter := ratelimit.New(cfg.ConnectRateLimitCapacity, cfg.ConnectRateLimitRefillPerSecond)

	stopEviction := make(chan struct{})
	go limiter.RunEvictionLoop(time.Minute, stopEviction)
	go connectLimiter.RunEvictionLoop(time.Minute, stopEviction)

	cp := controlplane.New(controlplane.Deps{
		Auth:           authSvc,
		Registry:       reg,
		Tracker:        trk,
		Metrics:        m,
		Log:            log,
		BaseDomain:     cfg.BaseDomain,
		ConnectLimiter: connectLimiter,
	})
	controlMux := http.NewServeMux()
	controlMux.HandleFunc("/_cok/connect", cp.HandleUpgrade)
	controlServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.ControlPort), Handler: controlMux}

	ing := ingress.New(ingress.Deps{
		Registry:       reg,
		Tracker:        trk,
		RateLimiter:    limiter,
		Metrics:        m,
		Log:            log,
		BaseDomain:     cfg.BaseDomain,
		RequestTimeout: cfg.RequestTimeout,
	})
	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: ing}

	dash := dashboard.New(m, reg, cfg.MaxTunnels)
	stopMetricsTicker := make(chan struct{})
	go dash.StartMetricsTicker(stopMetricsTicker)
	opsServer := &http.Server{Addr: ":9000", Handler: dash.Handler()}

	go func() {
		log.Infof("control plane listening on %s", controlServer.Addr)
		if err := controlServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("control plane server error: %v", err)
		}
	}()
	go func() {
		log.Infof("public ingress listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("ingress server error: %v", err)
		}
	}()
	go func() {
		log.Infof("ops server listening on %s", opsServer.Addr)
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("ops server error: %v", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			snap := m.Snapshot()
			log.Infof("metrics – requests: %d | ok: %d | failed: %d | active tunnels: %d",
				snap.RequestsTotal, snap.RequestsOK, snap.RequestsFailed, snap.ActiveTunnels)
		}
	}()

	broadcaster := shutdown.New()
	broadcaster.Register("stop accepting ingress traffic", 10*time.Second, func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	})
	broadcaster.Register("stop accepting control-plane connections", 10*time.Second, func(ctx context.Context) error {
		return controlServer.Shutdown(ctx)
	})
	broadcaster.Register("stop ops server", 5*time.Second, func(ctx context.Context) error {
		return opsServer.Shutdown(ctx)
	})
	broadcaster.Register("stop background loops", 5*time.Second, func(ctx context.Context) error {
		close(stopEviction)
		close(stopMetricsTicker)
		return nil
	})

	sig := broadcaster.ListenForSignals(context.Background())
	log.Infof("received signal %s; shutting down", sig)

	for _, result := range broadcaster.Trigger() {
		if result.Err != nil {
			log.Errorf("shutdown step %q failed: %v", result.Name, result.Err)
		}
	}
	log.Info("cokd shut down cleanly")
}
