// Package client is cok's client session (component H): it connects to
// cokd's control plane, authenticates, forwards inbound tunneled requests to
// the local origin, and reconnects with backoff gated by a circuit breaker.
package client

import (
	"net/http"
	"time"
)

// localOriginTransport groups the connection-pool tuning for requests issued
// against the local origin service.
//
// Grounded on the teacher's client.NewHTTPClient: same custom-Transport,
// keep-alives-on, bounded-idle-pool shape, trimmed to what a single
// localhost origin needs — no cookie jar (tunneled requests are forwarded
// verbatim, not replayed through session state) and no proxy support (the
// origin is always localhost:local_port).
var localOriginTransport = &http.Transport{
	DisableKeepAlives:     false,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	MaxConnsPerHost:       200,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: time.Second,
}

// NewOriginClient constructs the *http.Client forward_to_origin uses to
// reach localhost:local_port, bounded by requestTimeout end-to-end.
func NewOriginClient(requestTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: localOriginTransport,
		Timeout:   requestTimeout,
		// Tunneled requests must not be silently redirected locally — the
		// redirect response itself is what gets carried back over the
		// tunnel, so the remote browser can follow it.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
