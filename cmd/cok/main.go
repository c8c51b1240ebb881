// cok is the reverse-tunnel client. It dials cokd's control plane, registers
// a subdomain, and forwards incoming requests to a local origin server.
//
// Flag parsing follows the teacher's main.go (stdlib flag package, one
// flag.Parse call up front); unlike cokd, most settings here come from CLI
// flags per spec.md §6, with env vars only as fallbacks for values a CI
// pipeline would rather not put on a command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/annurdien/cok/client"
	"github.com/annurdien/cok/config"
	"github.com/annurdien/cok/logger"
	"github.com/annurdien/cok/shutdown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.DefaultClientConfig()

	localPort := flag.Int("p", cfg.LocalPort, "local port to forward requests to (required)")
	subdomain := flag.String("s", cfg.Subdomain, "requested subdomain (server assigns one if omitted)")
	apiKey := flag.String("api-key", cfg.APIKey, "API key (falls back to COK_API_KEY)")
	serverURL := flag.String("server", cfg.ServerURL, "control-plane websocket URL (falls back to COK_SERVER_URL)")
	host := flag.String("host", "", "local origin host; accepted but not used, requests always go to localhost")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := logger.LevelInfo
	if *verbose {
		level = logger.LevelDebug
	}
	log := logger.New(level)

	cfg.LocalPort = *localPort
	cfg.Subdomain = *subdomain
	cfg.APIKey = *apiKey
	cfg.ServerURL = *serverURL
	_ = host // origin host is hardcoded to localhost in client.Session; flag reserved for parity with §6

	if cfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "cok: --api-key (or COK_API_KEY) is required")
		return 1
	}
	if cfg.ServerURL == "" {
		fmt.Fprintln(os.Stderr, "cok: --server (or COK_SERVER_URL) is required")
		return 1
	}
	if cfg.LocalPort <= 0 {
		fmt.Fprintln(os.Stderr, "cok: -p <localPort> is required")
		return 1
	}

	sess := client.New(cfg, log)

	broadcaster := shutdown.New()
	ctx, cancel := context.WithCancel(context.Background())
	broadcaster.Register("stop forwarding worker pool", 0, func(context.Context) error {
		sess.Stop()
		return nil
	})
	broadcaster.Register("cancel session context", 0, func(context.Context) error {
		cancel()
		return nil
	})

	go func() {
		sig := broadcaster.ListenForSignals(context.Background())
		log.Infof("received signal %s; shutting down", sig)
		broadcaster.Trigger()
	}()

	err := sess.Run(ctx)
	broadcaster.Trigger()

	if err == nil || ctx.Err() != nil {
		log.Info("cok exiting cleanly")
		return 0
	}

	var fatal *client.ErrFatal
	if errors.As(err, &fatal) {
		log.Errorf("fatal error: %v", err)
		return 1
	}

	log.Errorf("exhausted reconnect attempts: %v", err)
	return 2
}
