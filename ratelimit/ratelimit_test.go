package ratelimit_test

import (
	"testing"
	"time"

	"github.com/annurdien/cok/ratelimit"
)

func TestAllow_WithinCapacity(t *testing.T) {
	l := ratelimit.New(2, 1)

	if !l.Allow("client-a", 1) {
		t.Fatal("expected first request to be allowed")
	}
	if !l.Allow("client-a", 1) {
		t.Fatal("expected second request within capacity to be allowed")
	}
	if l.Allow("client-a", 1) {
		t.Fatal("expected third request to exhaust the bucket")
	}
}

func TestAllow_IndependentPerIdentifier(t *testing.T) {
	l := ratelimit.New(1, 1)

	if !l.Allow("a", 1) {
		t.Fatal("expected a's first request to be allowed")
	}
	if !l.Allow("b", 1) {
		t.Fatal("expected b's bucket to be independent of a's")
	}
	if l.Allow("a", 1) {
		t.Fatal("expected a's bucket to still be exhausted")
	}
}

func TestAllow_RefillsOverTime(t *testing.T) {
	l := ratelimit.New(1, 100) // 100 tokens/sec refill, so ~10ms per token

	if !l.Allow("client", 1) {
		t.Fatal("expected first request to be allowed")
	}
	if l.Allow("client", 1) {
		t.Fatal("expected bucket to be empty immediately after")
	}

	time.Sleep(30 * time.Millisecond)

	if !l.Allow("client", 1) {
		t.Fatal("expected bucket to have refilled after waiting")
	}
}

func TestEvictIdle_RemovesEveryStaleBucket(t *testing.T) {
	l := ratelimit.New(5, 1)
	l.Allow("first", 1)
	l.Allow("second", 1)

	now := time.Now()
	evicted := l.EvictIdle(now.Add(10 * time.Minute))
	if evicted != 2 {
		t.Fatalf("expected both buckets evicted when both are stale, got %d", evicted)
	}
	if l.BucketCount() != 0 {
		t.Fatalf("expected 0 buckets remaining, got %d", l.BucketCount())
	}
}

func TestEvictIdle_KeepsRecentlyUsedBuckets(t *testing.T) {
	l := ratelimit.New(5, 1)
	l.Allow("active", 1)

	evicted := l.EvictIdle(time.Now())
	if evicted != 0 {
		t.Fatalf("expected no eviction for a bucket used just now, got %d evicted", evicted)
	}
	if l.BucketCount() != 1 {
		t.Fatalf("expected bucket to survive, got count %d", l.BucketCount())
	}
}
