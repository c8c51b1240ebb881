// Package metrics provides lightweight, lock-free counters for cokd using
// atomic operations so they impose minimal overhead on the request hot path.
//
// Grounded directly on the teacher's Metrics: same all-atomic-fields shape,
// generalized from a single (total, success, failed) triad to the counters
// the ops dashboard (component J) and the request-routing path (F) need —
// requests by outcome, active tunnels, and errors split by kind.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics tracks aggregate statistics for cokd. All fields are accessed
// exclusively through atomic operations.
type Metrics struct {
	RequestsTotal   uint64
	RequestsOK      uint64
	RequestsFailed  uint64

	ErrorsNoTunnel     uint64 // 404: host carries no tunnel subdomain
	ErrorsRateLimited  uint64 // 429
	ErrorsBadGateway   uint64 // 502: no live session, tunnel disconnected, or dispatch failure
	ErrorsTimeout      uint64 // 504: origin/tracker timeout
	ErrorsTooLarge     uint64 // 413

	TunnelsRegistered   uint64 // lifetime count of successful registrations
	TunnelsRejected     uint64 // lifetime count of failed registration attempts
	activeTunnels       int64  // current live session count; set via SetActiveTunnels

	startTime time.Time
}

// New creates a Metrics instance with the start time set to now.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) IncrementRequestsTotal()  { atomic.AddUint64(&m.RequestsTotal, 1) }
func (m *Metrics) IncrementRequestsOK()     { atomic.AddUint64(&m.RequestsOK, 1) }
func (m *Metrics) IncrementRequestsFailed() { atomic.AddUint64(&m.RequestsFailed, 1) }

func (m *Metrics) IncrementTunnelsRegistered() { atomic.AddUint64(&m.TunnelsRegistered, 1) }
func (m *Metrics) IncrementTunnelsRejected()   { atomic.AddUint64(&m.TunnelsRejected, 1) }

// SetActiveTunnels records the registry's current session count; the control
// plane sets it from registry.Manager.Count whenever a tunnel registers or is
// torn down.
func (m *Metrics) SetActiveTunnels(n int) { atomic.StoreInt64(&m.activeTunnels, int64(n)) }

// ActiveTunnels returns the last value recorded by SetActiveTunnels.
func (m *Metrics) ActiveTunnels() int64 { return atomic.LoadInt64(&m.activeTunnels) }

// RecordError increments the counter matching an HTTP status the public
// ingress returned instead of a successful proxy, as well as the aggregate
// RequestsFailed counter. Statuses outside the tracked set only increment
// RequestsFailed.
func (m *Metrics) RecordError(status int) {
	atomic.AddUint64(&m.RequestsFailed, 1)
	switch status {
	case 404:
		atomic.AddUint64(&m.ErrorsNoTunnel, 1)
	case 413:
		atomic.AddUint64(&m.ErrorsTooLarge, 1)
	case 429:
		atomic.AddUint64(&m.ErrorsRateLimited, 1)
	case 502:
		atomic.AddUint64(&m.ErrorsBadGateway, 1)
	case 504:
		atomic.AddUint64(&m.ErrorsTimeout, 1)
	}
}

// RequestsPerSecond returns the average request rate since the Metrics
// instance was created. Returns 0 if no time at all has elapsed since
// creation, to avoid division by zero.
func (m *Metrics) RequestsPerSecond() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&m.RequestsTotal)) / elapsed
}

// Snapshot is a point-in-time copy of the counters, suitable for JSON
// encoding on the /api/metrics/stream endpoint (component J).
type Snapshot struct {
	RequestsTotal     uint64  `json:"requests_total"`
	RequestsOK        uint64  `json:"requests_ok"`
	RequestsFailed    uint64  `json:"requests_failed"`
	ErrorsNoTunnel    uint64  `json:"errors_no_tunnel"`
	ErrorsRateLimited uint64  `json:"errors_rate_limited"`
	ErrorsBadGateway  uint64  `json:"errors_bad_gateway"`
	ErrorsTimeout     uint64  `json:"errors_timeout"`
	ErrorsTooLarge    uint64  `json:"errors_too_large"`
	TunnelsRegistered uint64  `json:"tunnels_registered"`
	TunnelsRejected   uint64  `json:"tunnels_rejected"`
	ActiveTunnels     int64   `json:"active_tunnels"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

// Snapshot takes an atomic, independently-loaded reading of every counter.
// Because the loads are not performed under a single lock, the result may be
// very slightly inconsistent at nanosecond granularity, which is acceptable
// for monitoring purposes.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		RequestsTotal:     atomic.LoadUint64(&m.RequestsTotal),
		RequestsOK:        atomic.LoadUint64(&m.RequestsOK),
		RequestsFailed:    atomic.LoadUint64(&m.RequestsFailed),
		ErrorsNoTunnel:    atomic.LoadUint64(&m.ErrorsNoTunnel),
		ErrorsRateLimited: atomic.LoadUint64(&m.ErrorsRateLimited),
		ErrorsBadGateway:  atomic.LoadUint64(&m.ErrorsBadGateway),
		ErrorsTimeout:     atomic.LoadUint64(&m.ErrorsTimeout),
		ErrorsTooLarge:    atomic.LoadUint64(&m.ErrorsTooLarge),
		TunnelsRegistered: atomic.LoadUint64(&m.TunnelsRegistered),
		TunnelsRejected:   atomic.LoadUint64(&m.TunnelsRejected),
		ActiveTunnels:     m.ActiveTunnels(),
		RequestsPerSecond: m.RequestsPerSecond(),
	}
}
