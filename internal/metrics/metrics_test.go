package metrics_test

import (
	"testing"

	"github.com/sabouaram/socks5d/internal/metrics"
)

func TestMonotonicityAndCurrentReturnsToBaseline(t *testing.T) {
	r := metrics.New()

	base := r.Snapshot()
	if base.TotalConnections != 0 || base.CurrentConnections != 0 {
		t.Fatalf("fresh registry should start at zero, got %+v", base)
	}

	r.ConnectionOpened()
	r.ConnectionOpened()
	r.AddBytesSent(100)
	r.AddBytesReceived(50)

	mid := r.Snapshot()
	if mid.TotalConnections != 2 {
		t.Fatalf("TotalConnections = %d, want 2", mid.TotalConnections)
	}
	if mid.CurrentConnections != 2 {
		t.Fatalf("CurrentConnections = %d, want 2", mid.CurrentConnections)
	}
	if mid.BytesTransferred != 150 {
		t.Fatalf("BytesTransferred = %d, want 150", mid.BytesTransferred)
	}

	r.ConnectionClosed()
	r.ConnectionClosed()

	final := r.Snapshot()
	if final.CurrentConnections != base.CurrentConnections {
		t.Fatalf("CurrentConnections after closing all = %d, want %d", final.CurrentConnections, base.CurrentConnections)
	}
	if final.TotalConnections < mid.TotalConnections {
		t.Fatalf("TotalConnections decreased: %d -> %d", mid.TotalConnections, final.TotalConnections)
	}
}

func TestSuccessAndFailureCounters(t *testing.T) {
	r := metrics.New()
	r.ConnectionSucceeded()
	r.ConnectionFailed()
	r.ConnectionFailed()

	snap := r.Snapshot()
	if snap.SuccessfulConnections != 1 {
		t.Fatalf("SuccessfulConnections = %d, want 1", snap.SuccessfulConnections)
	}
	if snap.FailedConnections != 2 {
		t.Fatalf("FailedConnections = %d, want 2", snap.FailedConnections)
	}
}
