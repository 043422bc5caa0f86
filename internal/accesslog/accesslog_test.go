package accesslog_test

import (
	"testing"
	"time"

	"github.com/sabouaram/socks5d/internal/accesslog"
)

func TestFormatSuccessfulConnection(t *testing.T) {
	l := accesslog.Line{
		When:       time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC),
		Username:   "admin",
		ClientAddr: "10.0.0.5:51515",
		TargetHost: "127.0.0.1",
		TargetPort: 80,
		Outcome:    accesslog.OK,
		BytesSent:  12,
		BytesRecv:  34,
	}

	want := "[2026-07-31 10:00:00] ACCESS admin@10.0.0.5:51515 -> 127.0.0.1:80 OK 12/34"
	if got := l.Format(); got != want {
		t.Fatalf("Format() = %q, want %q", got, want)
	}
}

func TestFormatUsesDashForMissingFields(t *testing.T) {
	l := accesslog.Line{
		When:       time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC),
		ClientAddr: "10.0.0.5:51515",
		Outcome:    accesslog.Error,
	}

	want := "[2026-07-31 10:00:00] ACCESS -@10.0.0.5:51515 -> -:0 ERROR 0/0"
	if got := l.Format(); got != want {
		t.Fatalf("Format() = %q, want %q", got, want)
	}
}
