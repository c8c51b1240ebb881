// Package tracker is the Request Tracker: it correlates an outstanding
// request_id with the public HTTP handler blocked waiting for its response,
// and enforces a per-request timeout.
//
// Grounded on the teacher's token.HeartbeatManager, which keyed
// concurrently-accessed per-session state in a sync.Map; here a plain map
// guarded by a sync.Mutex (held only for one map operation) holds one-shot
// result channels instead of session state, each resolved at most once,
// since spec.md's §4.5 canonical implementation is "a map of oneshot
// channels."
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/annurdien/cok/cokerr"
	"github.com/annurdien/cok/frame"
)

// Outcome is what a tracked request resolves to: exactly one of Response
// set, or Err set.
type Outcome struct {
	Response frame.HTTPResponseMessage
	Err      error
}

// OrphanLogger receives a callback whenever a response arrives for a
// request_id the tracker no longer has a waiter for (already timed out, or
// never tracked). Tests and the default logger both satisfy this via a
// plain function value.
type OrphanLogger func(requestID string)

type waiter struct {
	ch   chan Outcome
	once sync.Once
}

func (w *waiter) resolve(o Outcome) {
	w.once.Do(func() {
		w.ch <- o
		close(w.ch)
	})
}

// Tracker owns the pending-request map described in spec.md §3 and §4.5.
type Tracker struct {
	timeout time.Duration
	onOrphan OrphanLogger

	mu      sync.Mutex
	pending map[string]*waiter
}

// New creates a Tracker whose waiters time out after timeout. onOrphan may
// be nil, in which case orphan responses are silently dropped.
func New(timeout time.Duration, onOrphan OrphanLogger) *Tracker {
	if onOrphan == nil {
		onOrphan = func(string) {}
	}
	return &Tracker{
		timeout:  timeout,
		onOrphan: onOrphan,
		pending:  make(map[string]*waiter),
	}
}

// Track registers requestID and returns a channel that receives exactly one
// Outcome: the matching response (via Complete), an explicit failure (via
// Fail), or cokerr.ErrTimeout once the tracker's timeout elapses.
//
// ctx governs nothing beyond the caller's own cancellation; the timeout
// itself is always governed by t.timeout so every public HTTP handler gets
// a bounded wait regardless of what context it was built with.
func (t *Tracker) Track(ctx context.Context, requestID string) <-chan Outcome {
	w := &waiter{ch: make(chan Outcome, 1)}

	t.mu.Lock()
	t.pending[requestID] = w
	t.mu.Unlock()

	timer := time.AfterFunc(t.timeout, func() {
		t.mu.Lock()
		if t.pending[requestID] == w {
			delete(t.pending, requestID)
		}
		t.mu.Unlock()
		w.resolve(Outcome{Err: cokerr.ErrTimeout})
	})

	out := make(chan Outcome, 1)
	go func() {
		select {
		case o := <-w.ch:
			timer.Stop()
			out <- o
		case <-ctx.Done():
			timer.Stop()
			t.mu.Lock()
			if t.pending[requestID] == w {
				delete(t.pending, requestID)
			}
			t.mu.Unlock()
			w.resolve(Outcome{Err: ctx.Err()})
			out <- Outcome{Err: ctx.Err()}
		}
	}()
	return out
}

// Complete resolves requestID's waiter with response. If no waiter exists —
// because it already timed out, or the id was never tracked — the response
// is dropped and onOrphan fires.
func (t *Tracker) Complete(requestID string, response frame.HTTPResponseMessage) {
	t.mu.Lock()
	w, ok := t.pending[requestID]
	if ok {
		delete(t.pending, requestID)
	}
	t.mu.Unlock()

	if !ok {
		t.onOrphan(requestID)
		return
	}
	w.resolve(Outcome{Response: response})
}

// Fail resolves requestID's waiter with err instead of a response. Used when
// the session's sink rejects submission (backpressure) or the session
// disconnects before a response arrives.
func (t *Tracker) Fail(requestID string, err error) {
	t.mu.Lock()
	w, ok := t.pending[requestID]
	if ok {
		delete(t.pending, requestID)
	}
	t.mu.Unlock()

	if !ok {
		return
	}
	w.resolve(Outcome{Err: err})
}

// FailAll resolves the waiter of each id in requestIDs that is still pending
// with err; ids not in requestIDs are left untouched. Called when a
// session's control connection closes so its owned requests complete
// promptly instead of waiting out the full timeout.
func (t *Tracker) FailAll(requestIDs []string, err error) {
	for _, id := range requestIDs {
		t.Fail(id, err)
	}
}

// PendingIDs returns a snapshot of every request_id currently awaiting a
// response. Intended for the control plane to discover which requests a
// disconnecting session owns; callers must have their own record of which
// ids belong to which session, since the tracker itself is session-agnostic.
func (t *Tracker) PendingIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.pending))
	for id := range t.pending {
		ids = append(ids, id)
	}
	return ids
}

// Len reports how many requests are currently pending.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
