package controlplane

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/annurdien/cok/cokerr"
)

// connSink adapts one websocket.Conn into a registry.Sink. gorilla/websocket
// forbids concurrent writes to the same connection, so every Enqueue hands
// its payload to a single writer goroutine over a bounded channel instead of
// writing directly.
type connSink struct {
	conn   *websocket.Conn
	outbox chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// outboxCapacity bounds how many frames may be queued for one session before
// Enqueue starts rejecting with backpressure. A slow or wedged client
// shouldn't let its queue grow without limit.
const outboxCapacity = 256

func newConnSink(conn *websocket.Conn) *connSink {
	return &connSink{
		conn:   conn,
		outbox: make(chan []byte, outboxCapacity),
		closed: make(chan struct{}),
	}
}

// Enqueue implements registry.Sink.
func (s *connSink) Enqueue(payload []byte) error {
	select {
	case <-s.closed:
		return cokerr.ErrTunnelDisconnected
	default:
	}

	select {
	case s.outbox <- payload:
		return nil
	default:
		return cokerr.ErrBackpressure
	}
}

// writerLoop drains the outbox and writes each payload as one binary
// websocket message, until close is called or a write fails.
func (s *connSink) writerLoop() error {
	for {
		select {
		case payload := <-s.outbox:
			if err := s.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				return err
			}
		case <-s.closed:
			return nil
		}
	}
}

// close marks the sink closed so further Enqueue calls fail fast. Idempotent.
func (s *connSink) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}
