// Package registry is the Connection Manager: the single source of truth
// for which subdomains currently have a live tunnel, and the sink each
// belongs to.
//
// Grounded on the teacher's session.SessionManager: the same RWMutex
// discipline (reads take RLock, mutations take a full Lock held only for the
// duration of one map operation, never across I/O) generalized from
// map[int]*Session to a dual index keyed by both tunnel id and subdomain.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/annurdien/cok/cokerr"
)

// Sink is how the registry and the public ingress hand a frame to a
// session's control connection without reaching into its transport
// directly. Implementations must be safe for concurrent use and must not
// block the registry's single-writer discipline — a full sink fails fast.
type Sink interface {
	// Enqueue submits payload for delivery over the session's control
	// connection. It returns cokerr.ErrBackpressure if the outbound queue is
	// full, and cokerr.ErrTunnelDisconnected if the session has already
	// closed.
	Enqueue(payload []byte) error
}

// Session is one live tunnel: a client's control connection plus the
// metadata the public ingress and control plane need to route to it.
type Session struct {
	ID                string
	Subdomain         string
	APIKeyFingerprint string
	ConnectedAt       time.Time

	sink Sink

	mu            sync.RWMutex
	requestCount  int64
	lastRequestAt time.Time
	owned         map[string]struct{}
}

// Enqueue forwards payload to the session's sink and records the activity
// for the ops dashboard.
func (s *Session) Enqueue(payload []byte) error {
	if err := s.sink.Enqueue(payload); err != nil {
		return err
	}
	s.mu.Lock()
	s.requestCount++
	s.lastRequestAt = time.Now()
	s.mu.Unlock()
	return nil
}

// TrackRequest records that requestID was dispatched to this session, so a
// disconnecting session can fail every request it still owns instead of
// leaving its waiters in the tracker to time out individually.
func (s *Session) TrackRequest(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owned == nil {
		s.owned = make(map[string]struct{})
	}
	s.owned[requestID] = struct{}{}
}

// UntrackRequest removes requestID once it has been resolved (successfully
// or not), so OwnedRequestIDs only ever reflects genuinely outstanding work.
func (s *Session) UntrackRequest(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owned, requestID)
}

// OwnedRequestIDs returns a snapshot of every request_id currently
// dispatched to this session and not yet resolved.
func (s *Session) OwnedRequestIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.owned))
	for id := range s.owned {
		ids = append(ids, id)
	}
	return ids
}

// Stats returns a point-in-time snapshot suitable for the ops dashboard.
func (s *Session) Stats() (requestCount int64, lastRequestAt time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requestCount, s.lastRequestAt
}

// Manager is the Connection Manager (component D): the registry of live
// tunnel sessions, keyed both by id and by subdomain. A Session is
// reachable via by_subdomain if and only if it is reachable via by_id under
// the same id — Register/Unregister maintain that invariant atomically.
type Manager struct {
	maxTunnels int

	mu          sync.RWMutex
	byID        map[string]*Session
	bySubdomain map[string]*Session
}

// NewManager creates an empty Manager that admits at most maxTunnels
// concurrent sessions.
func NewManager(maxTunnels int) *Manager {
	if maxTunnels <= 0 {
		maxTunnels = 1
	}
	return &Manager{
		maxTunnels:  maxTunnels,
		byID:        make(map[string]*Session),
		bySubdomain: make(map[string]*Session),
	}
}

// Register admits a new session for subdomain. It fails with
// cokerr.ErrCapacityReached if the registry is already at max_tunnels, or
// cokerr.ErrSubdomainTaken if subdomain already has a live session.
func (m *Manager) Register(subdomain, apiKeyFingerprint string, sink Sink) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.byID) >= m.maxTunnels {
		return nil, cokerr.ErrCapacityReached
	}
	if _, taken := m.bySubdomain[subdomain]; taken {
		return nil, cokerr.ErrSubdomainTaken
	}

	session := &Session{
		ID:                uuid.NewString(),
		Subdomain:         subdomain,
		APIKeyFingerprint: apiKeyFingerprint,
		ConnectedAt:       time.Now(),
		sink:              sink,
	}
	m.byID[session.ID] = session
	m.bySubdomain[subdomain] = session
	return session, nil
}

// Unregister removes a session from both indices. Idempotent: unregistering
// an id that is not present (already removed, or never existed) is a no-op.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.byID[id]
	if !ok {
		return
	}
	delete(m.byID, id)
	delete(m.bySubdomain, session.Subdomain)
}

// GetBySubdomain returns the live session for subdomain, or nil if none is
// registered.
func (m *Manager) GetBySubdomain(subdomain string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bySubdomain[subdomain]
}

// GetByID returns the live session for id, or nil if none is registered.
func (m *Manager) GetByID(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[id]
}

// Count returns the number of currently registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// List returns a snapshot of every registered session. Mutating the
// returned slice does not affect the registry.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s)
	}
	return out
}
