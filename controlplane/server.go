// Package controlplane is the Tunnel Control Plane, server side (component
// G): it accepts client control connections over WebSocket, drives the
// handshake state machine (AwaitHandshake → Authenticating → Registering →
// Serving → Closed), and feeds the request tracker with responses that
// arrive from the client.
//
// Grounded on the teacher's session.Session for the "own your transport,
// expose a small typed surface, tear down in one place" shape; the
// handshake state machine itself is new, since the teacher's sessions never
// negotiated anything beyond opening an HTTP client.
package controlplane

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/annurdien/cok/auth"
	"github.com/annurdien/cok/cokerr"
	"github.com/annurdien/cok/frame"
	"github.com/annurdien/cok/logger"
	"github.com/annurdien/cok/metrics"
	"github.com/annurdien/cok/ratelimit"
	"github.com/annurdien/cok/registry"
	"github.com/annurdien/cok/subdomain"
	"github.com/annurdien/cok/tracker"
)

// handshakeTimeout bounds how long a newly-opened connection has to send its
// ConnectRequest before the server gives up on it.
const handshakeTimeout = 10 * time.Second

// sessionTokenTTL bounds how long the session_token issued in a
// ConnectResponse remains valid for a future reconnect.
const sessionTokenTTL = 24 * time.Hour

// Deps are the collaborators a Server dispatches into; all must be set.
type Deps struct {
	Auth           *auth.Service
	Registry       *registry.Manager
	Tracker        *tracker.Tracker
	Metrics        *metrics.Metrics
	Log            *logger.Logger
	BaseDomain     string
	ConnectLimiter *ratelimit.Limiter
}

// Server accepts WebSocket upgrades and runs one state machine per
// connection.
type Server struct {
	deps     Deps
	upgrader websocket.Upgrader
}

// New creates a Server from deps.
func New(deps Deps) *Server {
	return &Server{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleUpgrade is the http.HandlerFunc mounted at the control-plane
// endpoint (e.g. /_cok/connect).
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	peerIP := clientIP(r.RemoteAddr)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Log.Errorf("control plane: upgrade failed: %v", err)
		return
	}
	s.serve(conn, peerIP)
}

func (s *Server) serve(conn *websocket.Conn, peerIP string) {
	defer conn.Close()

	session, sink, err := s.handshake(conn, peerIP)
	// teardown is a no-op for a nil session; a handshake that fails after
	// Register still returns the session, which must be unregistered.
	defer s.teardown(session, sink)
	if err != nil {
		s.deps.Log.Infof("control plane: handshake failed: %v", err)
		return
	}

	writerDone := make(chan error, 1)
	go func() { writerDone <- sink.writerLoop() }()

	if err := s.readerLoop(conn, session, sink); err != nil {
		s.deps.Log.Infof("control plane: session %s ended: %v", session.ID, err)
	}
	sink.close()
	<-writerDone
}

// handshake runs AwaitHandshake → Rate-limit & Authenticate → Subdomain
// resolve → Register → Acknowledge, returning the registered session and
// its sink on success. If a step after Register fails, the session and sink
// are returned together with the error so the caller can tear them down.
func (s *Server) handshake(conn *websocket.Conn, peerIP string) (*registry.Session, *connSink, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, nil, fmt.Errorf("read handshake: %w", err)
	}
	f, _, err := frame.Decode(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decode handshake: %w", err)
	}
	if f.Type != frame.TypeConnectRequest {
		s.sendError(conn, http.StatusBadRequest, "expected ConnectRequest")
		return nil, nil, fmt.Errorf("%w: expected ConnectRequest, got %v", cokerr.ErrProtocolError, f.Type)
	}

	if !s.deps.ConnectLimiter.Allow(peerIP, 1) {
		s.sendError(conn, http.StatusTooManyRequests, "too many connect attempts")
		return nil, nil, fmt.Errorf("connect rate limit exceeded for %s", peerIP)
	}

	var req frame.ConnectRequest
	if err := frame.DecodePayload(f, &req); err != nil {
		s.sendError(conn, http.StatusBadRequest, "malformed ConnectRequest")
		return nil, nil, err
	}

	candidate := req.RequestedSubdomain
	if candidate == "" {
		candidate = generateSubdomain()
	}
	sub, err := subdomain.Validate(candidate)
	if err != nil {
		s.sendError(conn, http.StatusBadRequest, fmt.Sprintf("invalid subdomain: %v", err))
		return nil, nil, err
	}

	// Verify runs against the resolved subdomain rather than the raw
	// candidate: the HMAC key is signed over the final subdomain, so an
	// auto-generated one has to be assigned before a signature can be
	// checked against it.
	if !s.deps.Auth.Verify(req.APIKey, sub) {
		s.sendError(conn, http.StatusUnauthorized, "invalid api key")
		return nil, nil, cokerr.ErrAuthFailed
	}

	sink := newConnSink(conn)
	session, err := s.deps.Registry.Register(sub, fingerprint(req.APIKey), sink)
	if err != nil {
		s.deps.Metrics.IncrementTunnelsRejected()
		switch {
		case errors.Is(err, cokerr.ErrSubdomainTaken):
			s.sendError(conn, http.StatusConflict, "subdomain already in use")
		case errors.Is(err, cokerr.ErrCapacityReached):
			s.sendError(conn, http.StatusServiceUnavailable, "server at capacity")
		default:
			s.sendError(conn, http.StatusInternalServerError, "registration failed")
		}
		return nil, nil, err
	}
	s.deps.Metrics.IncrementTunnelsRegistered()
	s.deps.Metrics.SetActiveTunnels(s.deps.Registry.Count())

	// session_token is a fresh ephemeral key scoped to this session's
	// subdomain, distinct from the api_key the client authenticated with;
	// it is what a future reconnect would present instead of replaying the
	// long-lived key.
	sessionKey := s.deps.Auth.Issue(sub, sessionTokenTTL)
	ack := frame.ConnectResponse{
		TunnelID:     session.ID,
		Subdomain:    sub,
		SessionToken: sessionKey.Signature,
		PublicURL:    fmt.Sprintf("https://%s.%s", sub, s.deps.BaseDomain),
		ExpiresAt:    sessionKey.ExpiresAt,
	}
	ackFrame, err := frame.New(frame.TypeConnectResponse, ack)
	if err != nil {
		return session, sink, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame.Encode(ackFrame)); err != nil {
		return session, sink, fmt.Errorf("send ConnectResponse: %w", err)
	}

	s.deps.Log.Infof("tunnel registered: %s -> subdomain %q (tunnel_id=%s)", session.ID, sub, session.ID)
	return session, sink, nil
}

// readerLoop is the Serving state: decode frames until the connection closes.
func (s *Server) readerLoop(conn *websocket.Conn, session *registry.Session, sink *connSink) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		f, _, err := frame.Decode(raw)
		if err != nil {
			if errors.Is(err, cokerr.ErrUnknownMessageType) {
				continue
			}
			return err
		}

		switch f.Type {
		case frame.TypeHTTPResponse:
			var resp frame.HTTPResponseMessage
			if err := frame.DecodePayload(f, &resp); err != nil {
				s.deps.Log.Errorf("decode HTTPResponse: %v", err)
				continue
			}
			s.deps.Tracker.Complete(resp.RequestID, resp)
		case frame.TypePing:
			var ping frame.PingMessage
			if err := frame.DecodePayload(f, &ping); err != nil {
				continue
			}
			pong, err := frame.New(frame.TypePong, frame.PongMessage{PingTimestamp: ping.Timestamp})
			if err == nil {
				// Goes through the sink so the writer goroutine stays the
				// connection's only writer.
				sink.Enqueue(frame.Encode(pong))
			}
		case frame.TypeDisconnect:
			return nil
		}
	}
}

// teardown unregisters the session and fails every request it still owns,
// so public HTTP handlers blocked in the tracker don't wait out the full
// timeout for a response that will never arrive.
func (s *Server) teardown(session *registry.Session, sink *connSink) {
	if session == nil {
		return
	}
	s.deps.Registry.Unregister(session.ID)
	s.deps.Metrics.SetActiveTunnels(s.deps.Registry.Count())
	sink.close()

	owned := session.OwnedRequestIDs()
	if len(owned) > 0 {
		s.deps.Tracker.FailAll(owned, cokerr.ErrTunnelDisconnected)
	}

	s.deps.Log.Infof("tunnel torn down: %s (%d in-flight requests failed)", session.ID, len(owned))
}

func (s *Server) sendError(conn *websocket.Conn, status int, message string) {
	f, err := frame.New(frame.TypeError, frame.ErrorMessage{Status: status, Message: message})
	if err != nil {
		return
	}
	conn.WriteMessage(websocket.BinaryMessage, frame.Encode(f))
}

// clientIP returns the host portion of a RemoteAddr, so the connect limiter
// is keyed on the peer's address rather than the "ip:port" pair.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func generateSubdomain() string {
	return "t-" + uuid.NewString()[:8]
}

// fingerprint derives a non-reversible identifier for an API key, suitable
// for logging and for registry.Session.APIKeyFingerprint, without retaining
// the key itself. Keys of 8 characters or fewer are returned unchanged.
func fingerprint(apiKey string) string {
	if len(apiKey) <= 8 {
		return apiKey
	}
	return apiKey[:4] + "…" + apiKey[len(apiKey)-4:]
}
