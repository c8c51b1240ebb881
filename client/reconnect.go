package client

import (
	"math/rand"
	"time"
)

// backoffCap matches spec.md's reconnect loop: attempts never wait longer
// than this regardless of how many consecutive failures have occurred.
const backoffCap = 60 * time.Second

// backoff computes reconnect_delay * 2^attempt, capped at backoffCap, with
// ±20% jitter so many clients reconnecting after a shared outage don't all
// retry in lockstep.
//
// Grounded on the teacher's scheduler.Scheduler, which fanned work out on a
// fixed cadence with no backoff at all; cok's reconnect loop needs the
// exponential-with-jitter shape the spec calls for, so this is new code
// rather than an adaptation, driven by Session.Run (session.go), which stops
// on context cancellation.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt && d < backoffCap; i++ {
		d *= 2
	}
	if d > backoffCap {
		d = backoffCap
	}
	jitter := 1 + (rand.Float64()*0.4 - 0.2) // uniform in [0.8, 1.2]
	return time.Duration(float64(d) * jitter)
}
