package metrics_test

import (
	"sync"
	"testing"

	"github.com/annurdien/cok/metrics"
)

func TestRecordError_IncrementsMatchingCounterAndAggregate(t *testing.T) {
	m := metrics.New()
	m.RecordError(404)
	m.RecordError(502)
	m.RecordError(502)

	snap := m.Snapshot()
	if snap.RequestsFailed != 3 {
		t.Errorf("RequestsFailed: got %d, want 3", snap.RequestsFailed)
	}
	if snap.ErrorsNoTunnel != 1 {
		t.Errorf("ErrorsNoTunnel: got %d, want 1", snap.ErrorsNoTunnel)
	}
	if snap.ErrorsBadGateway != 2 {
		t.Errorf("ErrorsBadGateway: got %d, want 2", snap.ErrorsBadGateway)
	}
}

func TestSetActiveTunnels(t *testing.T) {
	m := metrics.New()
	m.SetActiveTunnels(7)
	if got := m.ActiveTunnels(); got != 7 {
		t.Errorf("ActiveTunnels: got %d, want 7", got)
	}
}

func TestConcurrentIncrements(t *testing.T) {
	m := metrics.New()
	const goroutines = 1000
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			m.IncrementRequestsTotal()
			m.IncrementRequestsOK()
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.RequestsTotal != goroutines {
		t.Errorf("RequestsTotal: got %d, want %d", snap.RequestsTotal, goroutines)
	}
	if snap.RequestsOK != goroutines {
		t.Errorf("RequestsOK: got %d, want %d", snap.RequestsOK, goroutines)
	}
}
