// Package ratelimit implements the per-identifier token-bucket limiter used
// to admit public HTTP requests and control-plane connect attempts.
//
// Grounded on the teacher's cluster.InMemoryLock: the same "top-level mutex
// guards a map of per-key state, entries are pruned once idle" shape, here
// holding a *rate.Limiter per identifier instead of a *sync.Mutex. The
// token-bucket math itself is golang.org/x/time/rate (a dependency already
// present elsewhere in the pack — teemuteemu-caddy-language-server and
// Websoft9-AppOS both pull it in) rather than a hand-rolled refill loop.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleEvictionAfter matches spec.md §4.9: buckets untouched for this long
// are reclaimed so a limiter never grows unbounded under churn (e.g. many
// distinct client IPs seen once each).
const idleEvictionAfter = 5 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Limiter is a collection of independent token buckets, one per identifier,
// all sharing the same (capacity, refill_per_second) shape.
type Limiter struct {
	capacity int
	refill   float64

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New creates a Limiter where each identifier's bucket holds at most
// capacity tokens and refills at refillPerSecond tokens/second.
func New(capacity int, refillPerSecond float64) *Limiter {
	return &Limiter{
		capacity: capacity,
		refill:   refillPerSecond,
		buckets:  make(map[string]*bucket),
	}
}

// Allow consumes cost tokens from id's bucket, lazily creating and refilling
// it on access. It returns false — without blocking — if the bucket does
// not currently hold enough tokens.
func (l *Limiter) Allow(id string, cost int) bool {
	now := time.Now()

	l.mu.Lock()
	b, ok := l.buckets[id]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.refill), l.capacity)}
		l.buckets[id] = b
	}
	b.lastUsed = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, cost)
}

// EvictIdle removes buckets that have not been touched in more than
// idleEvictionAfter. Callers typically run this from a background ticker;
// it is also exposed directly so tests can drive eviction deterministically
// without sleeping for real minutes.
func (l *Limiter) EvictIdle(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for id, b := range l.buckets {
		if now.Sub(b.lastUsed) > idleEvictionAfter {
			delete(l.buckets, id)
			evicted++
		}
	}
	return evicted
}

// RunEvictionLoop blocks, evicting idle buckets every interval, until stop
// is closed. Intended to run in its own goroutine for the lifetime of the
// server.
func (l *Limiter) RunEvictionLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			l.EvictIdle(now)
		}
	}
}

// BucketCount reports how many distinct identifiers currently have a live
// bucket. Exposed for the ops dashboard and for tests.
func (l *Limiter) BucketCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
