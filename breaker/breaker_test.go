package breaker_test

import (
	"testing"
	"time"

	"github.com/annurdien/cok/breaker"
)

func TestClosed_StaysClosedUnderThreshold(t *testing.T) {
	b := breaker.New(3, time.Second)

	for i := 0; i < 2; i++ {
		if !b.TryAcquire() {
			t.Fatalf("expected acquire to succeed while closed, iteration %d", i)
		}
		b.RecordFailure()
	}
	if b.CurrentState() != breaker.Closed {
		t.Fatalf("expected still Closed below threshold, got %s", b.CurrentState())
	}
}

func TestClosed_OpensAtThreshold(t *testing.T) {
	b := breaker.New(2, time.Second)

	b.TryAcquire()
	b.RecordFailure()
	b.TryAcquire()
	b.RecordFailure()

	if b.CurrentState() != breaker.Open {
		t.Fatalf("expected Open after reaching threshold, got %s", b.CurrentState())
	}
	if b.TryAcquire() {
		t.Fatal("expected TryAcquire to refuse while Open and within cooldown")
	}
}

func TestSuccess_ResetsFailuresInClosed(t *testing.T) {
	b := breaker.New(2, time.Second)

	b.TryAcquire()
	b.RecordFailure()
	b.TryAcquire()
	b.RecordSuccess()
	b.TryAcquire()
	b.RecordFailure()

	if b.CurrentState() != breaker.Closed {
		t.Fatalf("expected Closed since success reset the failure count, got %s", b.CurrentState())
	}
}

func TestOpen_TransitionsToHalfOpenAfterCooldown(t *testing.T) {
	b := breaker.New(1, 10*time.Millisecond)

	b.TryAcquire()
	b.RecordFailure()
	if b.CurrentState() != breaker.Open {
		t.Fatalf("expected Open, got %s", b.CurrentState())
	}

	time.Sleep(20 * time.Millisecond)

	if !b.TryAcquire() {
		t.Fatal("expected a single probe acquire to succeed after cooldown")
	}
	if b.CurrentState() != breaker.HalfOpen {
		t.Fatalf("expected HalfOpen after cooldown probe, got %s", b.CurrentState())
	}
	if b.TryAcquire() {
		t.Fatal("expected a second concurrent acquire to be refused during the single HalfOpen probe")
	}
}

func TestHalfOpen_SuccessClosesBreaker(t *testing.T) {
	b := breaker.New(1, 5*time.Millisecond)
	b.TryAcquire()
	b.RecordFailure()
	time.Sleep(10 * time.Millisecond)
	b.TryAcquire() // consumes the HalfOpen probe

	b.RecordSuccess()

	if b.CurrentState() != breaker.Closed {
		t.Fatalf("expected Closed after successful probe, got %s", b.CurrentState())
	}
}

func TestHalfOpen_FailureReopensBreaker(t *testing.T) {
	b := breaker.New(1, 5*time.Millisecond)
	b.TryAcquire()
	b.RecordFailure()
	time.Sleep(10 * time.Millisecond)
	b.TryAcquire()

	b.RecordFailure()

	if b.CurrentState() != breaker.Open {
		t.Fatalf("expected Open after failed probe, got %s", b.CurrentState())
	}
	if b.Cooldown() <= 0 {
		t.Fatal("expected a positive cooldown after reopening")
	}
}
