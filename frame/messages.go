package frame

import "time"

// ConnectRequest is the first frame a client must send on a new control
// connection.
type ConnectRequest struct {
	APIKey             string   `json:"api_key"`
	RequestedSubdomain string   `json:"requested_subdomain,omitempty"`
	ClientVersion      string   `json:"client_version"`
	Capabilities       []string `json:"capabilities,omitempty"`
}

// ConnectResponse acknowledges a successful handshake and registration.
type ConnectResponse struct {
	TunnelID     string    `json:"tunnel_id"`
	Subdomain    string    `json:"subdomain"`
	SessionToken string    `json:"session_token"`
	PublicURL    string    `json:"public_url"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// HTTPHeader is a single ordered (name, value) pair; HTTP allows repeated
// header names so a map[string]string would lose information.
type HTTPHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HTTPRequestMessage carries a whole public HTTP request to the client for
// local forwarding.
type HTTPRequestMessage struct {
	RequestID     string       `json:"request_id"`
	Method        string       `json:"method"`
	Path          string       `json:"path"`
	Headers       []HTTPHeader `json:"headers,omitempty"`
	Body          []byte       `json:"body,omitempty"`
	RemoteAddress string       `json:"remote_address"`
}

// HTTPResponseMessage carries the local origin's whole response back to the
// server for delivery to the waiting public requester.
type HTTPResponseMessage struct {
	RequestID string       `json:"request_id"`
	Status    int          `json:"status"`
	Headers   []HTTPHeader `json:"headers,omitempty"`
	Body      []byte       `json:"body,omitempty"`
}

// PingMessage carries the sender's clock so the receiver can echo it back in
// Pong for a cheap round-trip-time estimate.
type PingMessage struct {
	Timestamp time.Time `json:"timestamp"`
}

// PongMessage echoes the timestamp of the Ping it answers.
type PongMessage struct {
	PingTimestamp time.Time `json:"ping_timestamp"`
}

// DisconnectMessage announces a clean, voluntary session teardown.
type DisconnectMessage struct {
	Reason string `json:"reason,omitempty"`
}

// ErrorMessage carries a structural failure (bad handshake, rate limit,
// auth failure, ...). Sent in answer to a ConnectRequest it ends the
// connection; on a connection that is already serving, the client only logs
// it.
type ErrorMessage struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}
