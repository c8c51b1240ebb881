// Package auth verifies the stateless HMAC-signed API keys cok clients
// present when opening a tunnel, and optionally issues short-lived ephemeral
// keys recorded in a process-local map.
//
// Grounded on the HMAC signer in go-core-stack-mcp-auth-proxy's pkg/auth
// package: the same "HMAC-SHA256 over a deterministic payload, hex-encode,
// compare" shape, here verifying a key against a subdomain instead of
// signing an outbound request.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"
)

// APIKey is the stateless key presented by a client: a hex-encoded
// HMAC-SHA256 of the subdomain, keyed by the server's shared secret.
type APIKey struct {
	Subdomain string
	Signature string // hex-encoded HMAC-SHA256(secret, subdomain); random hex for ephemeral keys
	ExpiresAt time.Time
}

// Service verifies API keys against a shared secret, and tracks optional
// ephemeral keys issued at runtime (e.g. the session_token the control plane
// issues on each successful handshake) that are not deterministically
// derivable.
type Service struct {
	secret []byte

	mu        sync.RWMutex
	ephemeral map[string]APIKey // keyed by signature
}

// New constructs a Service backed by secret. The secret should be at least
// 32 bytes; callers are responsible for validating that at configuration
// time (see config.ServerConfig).
func New(secret string) *Service {
	return &Service{
		secret:    []byte(secret),
		ephemeral: make(map[string]APIKey),
	}
}

// sign computes the deterministic hex-encoded HMAC-SHA256 signature for
// subdomain under the service's secret.
func (s *Service) sign(subdomain string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(subdomain))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether keyHex is a valid key for subdomain: either the
// deterministic HMAC signature, or a non-expired ephemeral key issued for
// that subdomain. The deterministic comparison runs in constant time.
func (s *Service) Verify(keyHex, subdomain string) bool {
	want := s.sign(subdomain)
	if subtle.ConstantTimeCompare([]byte(keyHex), []byte(want)) == 1 {
		return true
	}

	s.mu.RLock()
	key, ok := s.ephemeral[keyHex]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if key.Subdomain != subdomain {
		return false
	}
	if !key.ExpiresAt.IsZero() && time.Now().After(key.ExpiresAt) {
		return false
	}
	return true
}

// Issue returns an API key for subdomain. With ttl == 0 it returns the
// permanent deterministic key (valid for as long as the shared secret does
// not change). With ttl > 0 it mints a random, one-off signature recorded in
// the ephemeral map with an expiry — deliberately NOT the deterministic HMAC,
// since that signature never expires and an expiring entry keyed under it
// would be unreachable dead weight: Verify's constant-time comparison already
// accepts the deterministic signature unconditionally, so only a distinct
// random signature gives the ephemeral expiry any teeth.
func (s *Service) Issue(subdomain string, ttl time.Duration) APIKey {
	if ttl <= 0 {
		return APIKey{Subdomain: subdomain, Signature: s.sign(subdomain)}
	}

	key := APIKey{
		Subdomain: subdomain,
		Signature: randomSignature(),
		ExpiresAt: time.Now().Add(ttl),
	}
	s.mu.Lock()
	s.ephemeral[key.Signature] = key
	s.mu.Unlock()
	return key
}

func randomSignature() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the OS entropy source is broken; there is
		// no safe fallback for a security token.
		panic("auth: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// Revoke removes an ephemeral key immediately. It is a no-op for
// deterministic keys, which cannot be revoked without rotating the secret.
func (s *Service) Revoke(keyHex string) {
	s.mu.Lock()
	delete(s.ephemeral, keyHex)
	s.mu.Unlock()
}
