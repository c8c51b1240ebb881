// Package ingress is the Public HTTP Ingress (component F): it accepts
// external HTTP traffic, extracts the target subdomain from the Host
// header, and dispatches the request through the Connection Manager (D) and
// Request Tracker (E) to the matching client session.
//
// Grounded on the teacher's dashboard.Server for the "plain net/http
// ServeMux-free handler with explicit status-code branches" shape; the
// request-forwarding sequence itself is new, composing registry, tracker,
// and ratelimit per spec.md §4.6.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/annurdien/cok/cokerr"
	"github.com/annurdien/cok/frame"
	"github.com/annurdien/cok/logger"
	"github.com/annurdien/cok/metrics"
	"github.com/annurdien/cok/ratelimit"
	"github.com/annurdien/cok/registry"
	"github.com/annurdien/cok/tracker"
)

// maxBodyBytes bounds the size of a public request body the ingress will
// buffer and forward; larger bodies fail fast with 413 rather than exhausting
// memory on behalf of an untrusted client.
const maxBodyBytes = 10 << 20 // 10 MiB

// Deps are the collaborators Server dispatches into; all must be set.
type Deps struct {
	Registry       *registry.Manager
	Tracker        *tracker.Tracker
	RateLimiter    *ratelimit.Limiter
	Metrics        *metrics.Metrics
	Log            *logger.Logger
	BaseDomain     string
	RequestTimeout time.Duration
}

// Server is the http.Handler mounted on the public-facing listener.
type Server struct {
	deps Deps
}

// New creates a Server from deps.
func New(deps Deps) *Server {
	return &Server{deps: deps}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.deps.Metrics.IncrementRequestsTotal()

	sub, ok := subdomainFromHost(r.Host, s.deps.BaseDomain)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown host")
		return
	}

	if !s.deps.RateLimiter.Allow(clientIP(r.RemoteAddr), 1) {
		s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	session := s.deps.Registry.GetBySubdomain(sub)
	if session == nil {
		s.writeError(w, http.StatusBadGateway, "no live session for this subdomain")
		return
	}

	body, err := readLimited(r.Body, maxBodyBytes)
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	requestID := uuid.NewString()
	msg := frame.HTTPRequestMessage{
		RequestID:     requestID,
		Method:        r.Method,
		Path:          r.URL.RequestURI(),
		Headers:       toFrameHeaders(r.Header),
		Body:          body,
		RemoteAddress: r.RemoteAddr,
	}
	f, err := frame.New(frame.TypeHTTPRequest, msg)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.RequestTimeout)
	defer cancel()

	session.TrackRequest(requestID)
	outcome := s.deps.Tracker.Track(ctx, requestID)

	if err := session.Enqueue(frame.Encode(f)); err != nil {
		session.UntrackRequest(requestID)
		s.deps.Tracker.Fail(requestID, err)
		<-outcome
		s.writeDispatchError(w, err)
		return
	}

	result := <-outcome
	session.UntrackRequest(requestID)
	s.writeOutcome(w, result)
}

func (s *Server) writeOutcome(w http.ResponseWriter, o tracker.Outcome) {
	if o.Err != nil {
		s.writeDispatchError(w, o.Err)
		return
	}
	resp := o.Response
	for _, h := range resp.Headers {
		w.Header().Add(h.Name, h.Value)
	}
	if w.Header().Get("Content-Length") == "" {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(resp.Body)))
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	w.Write(resp.Body)
	s.deps.Metrics.IncrementRequestsOK()
}

func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cokerr.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "timed out waiting for origin response")
	case errors.Is(err, cokerr.ErrBackpressure):
		s.writeError(w, http.StatusServiceUnavailable, "tunnel is overloaded")
	case errors.Is(err, cokerr.ErrTunnelDisconnected):
		s.writeError(w, http.StatusBadGateway, "tunnel disconnected")
	default:
		s.writeError(w, http.StatusBadGateway, "upstream error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.deps.Metrics.RecordError(status)
	http.Error(w, message, status)
}

// subdomainFromHost extracts the leftmost label of host as the candidate
// subdomain, requiring the remainder to match baseDomain exactly.
func subdomainFromHost(host, baseDomain string) (string, bool) {
	host = strings.ToLower(host)
	if idx := strings.IndexByte(host, ':'); idx != -1 {
		host = host[:idx]
	}
	suffix := "." + strings.ToLower(baseDomain)
	if !strings.HasSuffix(host, suffix) {
		return "", false
	}
	sub := strings.TrimSuffix(host, suffix)
	if sub == "" || strings.Contains(sub, ".") {
		return "", false
	}
	return sub, true
}

// clientIP returns the host portion of a RemoteAddr, so the rate limiter is
// keyed on the requester's address rather than the "ip:port" pair (which
// would give every new ephemeral port its own bucket).
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func toFrameHeaders(h http.Header) []frame.HTTPHeader {
	out := make([]frame.HTTPHeader, 0, len(h))
	for name, values := range h {
		for _, v := range values {
			out = append(out, frame.HTTPHeader{Name: name, Value: v})
		}
	}
	return out
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(r, limit+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, cokerr.ErrFrameTooLarge
	}
	return body, nil
}
