package tracker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/annurdien/cok/cokerr"
	"github.com/annurdien/cok/frame"
	"github.com/annurdien/cok/tracker"
)

func TestTrack_CompleteResolvesWaiter(t *testing.T) {
	tr := tracker.New(time.Second, nil)
	ch := tr.Track(context.Background(), "req-1")

	tr.Complete("req-1", frame.HTTPResponseMessage{RequestID: "req-1", Status: 200})

	select {
	case out := <-ch:
		if out.Err != nil {
			t.Fatalf("unexpected error: %v", out.Err)
		}
		if out.Response.Status != 200 {
			t.Fatalf("expected status 200, got %d", out.Response.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for resolution")
	}
}

func TestTrack_Timeout(t *testing.T) {
	tr := tracker.New(20*time.Millisecond, nil)
	ch := tr.Track(context.Background(), "req-2")

	select {
	case out := <-ch:
		if !errors.Is(out.Err, cokerr.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", out.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tracker's own timeout")
	}
}

func TestComplete_AfterTimeoutIsOrphan(t *testing.T) {
	var orphaned string
	tr := tracker.New(10*time.Millisecond, func(id string) { orphaned = id })

	ch := tr.Track(context.Background(), "req-3")
	<-ch // drain the timeout outcome

	tr.Complete("req-3", frame.HTTPResponseMessage{RequestID: "req-3", Status: 200})

	if orphaned != "req-3" {
		t.Fatalf("expected orphan callback for req-3, got %q", orphaned)
	}
}

func TestComplete_UnknownRequestIsOrphanAndDoesNotPanic(t *testing.T) {
	var orphaned string
	tr := tracker.New(time.Second, func(id string) { orphaned = id })

	tr.Complete("never-tracked", frame.HTTPResponseMessage{})

	if orphaned != "never-tracked" {
		t.Fatalf("expected orphan callback, got %q", orphaned)
	}
}

func TestFail_ResolvesWithError(t *testing.T) {
	tr := tracker.New(time.Second, nil)
	ch := tr.Track(context.Background(), "req-4")

	tr.Fail("req-4", cokerr.ErrTunnelDisconnected)

	out := <-ch
	if !errors.Is(out.Err, cokerr.ErrTunnelDisconnected) {
		t.Fatalf("expected ErrTunnelDisconnected, got %v", out.Err)
	}
}

func TestFailAll_ResolvesEveryPendingWaiter(t *testing.T) {
	tr := tracker.New(time.Second, nil)
	ch1 := tr.Track(context.Background(), "req-5")
	ch2 := tr.Track(context.Background(), "req-6")

	tr.FailAll([]string{"req-5", "req-6"}, cokerr.ErrTunnelDisconnected)

	for _, ch := range []<-chan tracker.Outcome{ch1, ch2} {
		out := <-ch
		if !errors.Is(out.Err, cokerr.ErrTunnelDisconnected) {
			t.Fatalf("expected ErrTunnelDisconnected, got %v", out.Err)
		}
	}
}

func TestTrack_EachRequestIDResolvedExactlyOnce(t *testing.T) {
	tr := tracker.New(time.Second, nil)
	ch := tr.Track(context.Background(), "req-7")

	tr.Complete("req-7", frame.HTTPResponseMessage{Status: 200})
	tr.Complete("req-7", frame.HTTPResponseMessage{Status: 500}) // second arrival must be a no-op/orphan

	out := <-ch
	if out.Response.Status != 200 {
		t.Fatalf("expected first completion to win, got status %d", out.Response.Status)
	}
}
