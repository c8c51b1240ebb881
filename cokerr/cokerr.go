// Package cokerr collects the sentinel error kinds shared by the server and
// client halves of cok, so callers can branch on errors.Is/errors.As instead
// of matching strings.
package cokerr

import "errors"

var (
	// ErrSubdomainTaken is returned by the connection manager when a
	// subdomain already has a live session registered against it.
	ErrSubdomainTaken = errors.New("subdomain taken")

	// ErrCapacityReached is returned by the connection manager when the
	// registry is already at max_tunnels.
	ErrCapacityReached = errors.New("tunnel capacity reached")

	// ErrInsufficientData signals the frame codec needs more bytes before it
	// can decode a full frame. Never treated as a decode failure.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrUnsupportedVersion is returned when a frame's major version is not
	// one the codec understands.
	ErrUnsupportedVersion = errors.New("unsupported frame version")

	// ErrUnknownMessageType is returned for a frame type outside the known
	// set. Callers should log and drop the frame, not close the connection.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrFrameTooLarge is returned when a frame's payload_len exceeds
	// frame.MaxFrameSize. Fatal: the connection must be closed.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrTimeout is returned by the request tracker when a waiter's deadline
	// elapses before a response arrives.
	ErrTimeout = errors.New("request timed out")

	// ErrBackpressure is returned when a session's outbound sink is full.
	ErrBackpressure = errors.New("session sink backpressure")

	// ErrTunnelDisconnected is used to fail every pending request owned by a
	// session whose control connection just closed.
	ErrTunnelDisconnected = errors.New("tunnel disconnected")

	// ErrTunnelNotFound names the case where the public ingress cannot find
	// a live session for the requested subdomain. The ingress answers that
	// case with a 502 directly and does not return this value.
	ErrTunnelNotFound = errors.New("tunnel not found")

	// ErrProtocolError marks a handshake or frame sequencing violation on
	// the control connection; the connection must close.
	ErrProtocolError = errors.New("protocol error")

	// ErrAuthFailed marks an invalid or expired API key.
	ErrAuthFailed = errors.New("authentication failed")
)
