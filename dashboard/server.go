// Package dashboard is the Health/Ops surface (component J).
//
// It exposes:
//   - GET /health        – liveness + readiness combined, for humans/curl
//   - GET /health/live    – process is up and serving
//   - GET /health/ready   – process can accept new tunnels (not yet at capacity)
//   - GET /api/tunnels    – JSON snapshot of every registered session
//   - GET /api/metrics/stream – SSE stream of live counters (100ms ticks)
//
// Grounded on the teacher's dashboard.Server: the SSE-over-ServeMux shape,
// the CORS middleware, and the subscriber-fanout pattern for
// /api/metrics/stream all carry over directly. The config hot-reload,
// cluster-node, and proxy-upload endpoints do not — those served the bot
// engine's own operational needs (push new config, monitor gRPC workers,
// swap proxy lists), none of which cok has; see DESIGN.md for why they were
// dropped rather than adapted.
package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/annurdien/cok/metrics"
	"github.com/annurdien/cok/registry"
)

// TunnelView is the JSON shape of one entry in /api/tunnels.
type TunnelView struct {
	ID            string    `json:"id"`
	Subdomain     string    `json:"subdomain"`
	ConnectedAt   time.Time `json:"connected_at"`
	RequestCount  int64     `json:"request_count"`
	LastRequestAt time.Time `json:"last_request_at,omitempty"`
}

// Server serves cok's operational endpoints.
type Server struct {
	metrics    *metrics.Metrics
	registry   *registry.Manager
	maxTunnels int

	subsMu sync.Mutex
	subs   map[chan metrics.Snapshot]struct{}

	mux *http.ServeMux
}

// New creates a dashboard Server backed by m and reg. maxTunnels is used by
// /health/ready to decide whether the server can accept new tunnels.
func New(m *metrics.Metrics, reg *registry.Manager, maxTunnels int) *Server {
	s := &Server{
		metrics:    m,
		registry:   reg,
		maxTunnels: maxTunnels,
		subs:       make(map[chan metrics.Snapshot]struct{}),
	}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler to mount on the ops listener.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/health/live", s.handleLive)
	s.mux.HandleFunc("/health/ready", s.handleReady)
	s.mux.HandleFunc("/api/tunnels", s.withCORS(s.handleTunnels))
	s.mux.HandleFunc("/api/metrics/stream", s.withCORS(s.handleMetricsStream))
}

func (s *Server) withCORS(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h(w, r)
	}
}

// handleLive always returns 200 once the process is serving HTTP at all.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

// handleReady returns 503 once the registry is at max_tunnels, so a load
// balancer can stop routing new control-plane connections here without
// disrupting already-registered tunnels.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.maxTunnels > 0 && s.registry.Count() >= s.maxTunnels {
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "healthy",
		"active_tunnels": s.registry.Count(),
		"max_tunnels":    s.maxTunnels,
	})
}

func (s *Server) handleTunnels(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.List()
	views := make([]TunnelView, 0, len(sessions))
	for _, sess := range sessions {
		count, lastAt := sess.Stats()
		views = append(views, TunnelView{
			ID:            sess.ID,
			Subdomain:     sess.Subdomain,
			ConnectedAt:   sess.ConnectedAt,
			RequestCount:  count,
			LastRequestAt: lastAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// StartMetricsTicker fans out a metrics snapshot to every SSE subscriber
// every 100ms, until stop is closed. Intended to run in its own goroutine
// for the process lifetime.
func (s *Server) StartMetricsTicker(stop <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap := s.metrics.Snapshot()
			s.subsMu.Lock()
			for ch := range s.subs {
				select {
				case ch <- snap:
				default:
				}
			}
			s.subsMu.Unlock()
		}
	}
}

func (s *Server) handleMetricsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan metrics.Snapshot, 16)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()
	defer func() {
		s.subsMu.Lock()
		delete(s.subs, ch)
		s.subsMu.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			data, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
