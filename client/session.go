package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/annurdien/cok/breaker"
	"github.com/annurdien/cok/cokerr"
	"github.com/annurdien/cok/config"
	"github.com/annurdien/cok/frame"
	"github.com/annurdien/cok/logger"
	"github.com/annurdien/cok/worker"
)

// fatalStatus is the set of ConnectResponse/Error statuses spec.md §4.9
// marks as unrecoverable: retrying would just fail the same way again, so
// the whole client exits instead of reconnecting.
var fatalStatus = map[int]bool{http.StatusUnauthorized: true, http.StatusBadRequest: true, http.StatusConflict: true}

// ErrFatal wraps a fatal ConnectResponse error so Run can distinguish it
// from a transient one worth retrying.
type ErrFatal struct{ Status int; Message string }

func (e *ErrFatal) Error() string { return fmt.Sprintf("client: fatal connect error %d: %s", e.Status, e.Message) }

// Session owns the transport (outbound writes serialized by writeMu, with no
// send queue), origin HTTP client, reconnect loop, and circuit breaker for
// one client's lifetime — the
// mirror of registry.Session and controlplane's per-connection state on the
// server side.
//
// Grounded on the teacher's main.go startup/shutdown sequence for the
// overall lifecycle shape, and on session.Session for the "one goroutine per
// concern, guarded by a small set of mutexes" discipline; the reconnect
// state machine itself follows spec.md §4.9's pseudocode since the teacher
// had no analogous loop (its sessions were created once, not reconnected).
type Session struct {
	cfg     *config.ClientConfig
	log     *logger.Logger
	breaker *breaker.Breaker
	pool    *worker.WorkerPool
	origin  *http.Client

	writeMu sync.Mutex
	conn    *websocket.Conn

	lastPongMu sync.Mutex
	lastPong   time.Time
}

// New creates a Session ready for Run.
func New(cfg *config.ClientConfig, log *logger.Logger) *Session {
	pool := worker.NewWorkerPool(cfg.MaxConcurrentForwards)
	pool.Start()
	return &Session{
		cfg:     cfg,
		log:     log,
		breaker: breaker.New(cfg.BreakerThreshold, cfg.BreakerCooldown),
		pool:    pool,
		origin:  NewOriginClient(cfg.RequestTimeout),
	}
}

// Run is the reconnect loop from spec.md §4.9. It blocks until ctx is
// cancelled or a fatal error terminates the session, or (if
// MaxReconnectAttempts is non-negative) that many consecutive attempts have
// failed.
func (s *Session) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !s.breaker.TryAcquire() {
			select {
			case <-time.After(s.breaker.Cooldown()):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := s.connectAndRun(ctx)
		if err == nil {
			s.breaker.RecordSuccess()
			attempt = 0
			continue
		}

		var fatal *ErrFatal
		if errors.As(err, &fatal) {
			s.log.Errorf("fatal connect error, exiting: %v", err)
			return err
		}

		s.breaker.RecordFailure()
		s.log.Errorf("session ended: %v", err)

		attempt++
		if s.cfg.MaxReconnectAttempts >= 0 && attempt >= s.cfg.MaxReconnectAttempts {
			return fmt.Errorf("client: giving up after %d attempts: %w", attempt, err)
		}

		wait := backoff(s.cfg.ReconnectDelay, attempt)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// connectAndRun opens one control connection, completes the handshake, and
// runs the reader and heartbeat loops until either ends.
func (s *Session) connectAndRun(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", s.cfg.ServerURL, err)
	}
	defer conn.Close()

	s.writeMu.Lock()
	s.conn = conn
	s.writeMu.Unlock()

	req := frame.ConnectRequest{
		APIKey:             s.cfg.APIKey,
		RequestedSubdomain: s.cfg.Subdomain,
		ClientVersion:      "cok/1.0",
	}
	f, err := frame.New(frame.TypeConnectRequest, req)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame.Encode(f)); err != nil {
		return fmt.Errorf("client: send ConnectRequest: %w", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("client: await handshake response: %w", err)
	}
	resp, _, err := frame.Decode(raw)
	if err != nil {
		return fmt.Errorf("client: decode handshake response: %w", err)
	}

	switch resp.Type {
	case frame.TypeConnectResponse:
		var ok frame.ConnectResponse
		if err := frame.DecodePayload(resp, &ok); err != nil {
			return err
		}
		s.log.Infof("tunnel established: %s -> %s", ok.Subdomain, ok.PublicURL)
	case frame.TypeError:
		var errMsg frame.ErrorMessage
		if err := frame.DecodePayload(resp, &errMsg); err != nil {
			return err
		}
		if fatalStatus[errMsg.Status] {
			return &ErrFatal{Status: errMsg.Status, Message: errMsg.Message}
		}
		return fmt.Errorf("client: connect rejected (%d): %s", errMsg.Status, errMsg.Message)
	default:
		return fmt.Errorf("client: %w: unexpected handshake frame type %v", cokerr.ErrProtocolError, resp.Type)
	}

	s.setLastPong(time.Now())

	readerErr := make(chan error, 1)
	go func() { readerErr <- s.readerLoop(conn) }()

	heartbeatErr := make(chan error, 1)
	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	go func() { heartbeatErr <- s.heartbeatLoop(heartbeatCtx, conn) }()

	select {
	case err := <-readerErr:
		return err
	case err := <-heartbeatErr:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) setLastPong(t time.Time) {
	s.lastPongMu.Lock()
	s.lastPong = t
	s.lastPongMu.Unlock()
}

func (s *Session) getLastPong() time.Time {
	s.lastPongMu.Lock()
	defer s.lastPongMu.Unlock()
	return s.lastPong
}

// readerLoop decodes frames off the control connection until it closes or a
// fatal framing error occurs.
func (s *Session) readerLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("client: read: %w", err)
		}

		f, _, err := frame.Decode(raw)
		if err != nil {
			if errors.Is(err, cokerr.ErrUnknownMessageType) {
				s.log.Debugf("dropping unknown frame type: %v", err)
				continue
			}
			return fmt.Errorf("client: decode: %w", err)
		}

		switch f.Type {
		case frame.TypeHTTPRequest:
			var msg frame.HTTPRequestMessage
			if err := frame.DecodePayload(f, &msg); err != nil {
				s.log.Errorf("decode HTTPRequest: %v", err)
				continue
			}
			s.pool.Submit(func() { s.forwardToOrigin(msg) })
		case frame.TypePong:
			var pong frame.PongMessage
			if err := frame.DecodePayload(f, &pong); err == nil {
				s.setLastPong(time.Now())
			}
		case frame.TypeError:
			var errMsg frame.ErrorMessage
			if err := frame.DecodePayload(f, &errMsg); err == nil {
				s.log.Errorf("server error (%d): %s", errMsg.Status, errMsg.Message)
			}
		case frame.TypeDisconnect:
			var d frame.DisconnectMessage
			frame.DecodePayload(f, &d)
			return fmt.Errorf("client: %w: %s", cokerr.ErrTunnelDisconnected, d.Reason)
		}
	}
}

// heartbeatLoop sends Ping every HealthCheckInterval and closes the
// connection if no Pong has arrived within 2x that interval.
func (s *Session) heartbeatLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f, err := frame.New(frame.TypePing, frame.PingMessage{Timestamp: time.Now()})
			if err != nil {
				return err
			}
			s.writeMu.Lock()
			err = conn.WriteMessage(websocket.BinaryMessage, frame.Encode(f))
			s.writeMu.Unlock()
			if err != nil {
				return fmt.Errorf("client: send ping: %w", err)
			}

			if time.Since(s.getLastPong()) > 2*s.cfg.HealthCheckInterval {
				conn.Close()
				return fmt.Errorf("client: %w: no pong within %s", cokerr.ErrTimeout, 2*s.cfg.HealthCheckInterval)
			}
		}
	}
}

// forwardToOrigin issues msg as an HTTP request against the local origin and
// enqueues the HTTPResponseMessage (or a synthesized 502/504) for send.
func (s *Session) forwardToOrigin(msg frame.HTTPRequestMessage) {
	url := fmt.Sprintf("http://localhost:%d%s", s.cfg.LocalPort, msg.Path)
	req, err := http.NewRequest(msg.Method, url, bytes.NewReader(msg.Body))
	if err != nil {
		s.sendResponse(frame.HTTPResponseMessage{RequestID: msg.RequestID, Status: http.StatusBadGateway, Body: []byte("Bad Gateway")})
		return
	}
	for _, h := range msg.Headers {
		req.Header.Add(h.Name, h.Value)
	}

	resp, err := s.origin.Do(req)
	if err != nil {
		status := http.StatusBadGateway
		body := "Bad Gateway"
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
			body = "Gateway Timeout"
		}
		s.sendResponse(frame.HTTPResponseMessage{RequestID: msg.RequestID, Status: status, Body: []byte(body)})
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.sendResponse(frame.HTTPResponseMessage{RequestID: msg.RequestID, Status: http.StatusBadGateway, Body: []byte("Bad Gateway")})
		return
	}

	headers := make([]frame.HTTPHeader, 0, len(resp.Header))
	for name, values := range resp.Header {
		for _, v := range values {
			headers = append(headers, frame.HTTPHeader{Name: name, Value: v})
		}
	}

	s.sendResponse(frame.HTTPResponseMessage{
		RequestID: msg.RequestID,
		Status:    resp.StatusCode,
		Headers:   headers,
		Body:      body,
	})
}

func (s *Session) sendResponse(resp frame.HTTPResponseMessage) {
	f, err := frame.New(frame.TypeHTTPResponse, resp)
	if err != nil {
		s.log.Errorf("encode HTTPResponse for %s: %v", resp.RequestID, err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame.Encode(f)); err != nil {
		s.log.Errorf("send HTTPResponse for %s: %v", resp.RequestID, err)
	}
}

// Stop drains the forward-to-origin worker pool. Call after Run returns.
func (s *Session) Stop() {
	s.pool.Stop()
}
