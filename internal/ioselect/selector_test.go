package ioselect_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sabouaram/socks5d/internal/fsm"
	"github.com/sabouaram/socks5d/internal/ioselect"
)

func TestReadReadinessDispatch(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer w.Close()

	if err := ioselect.FDSetNonBlock(int(r.Fd())); err != nil {
		t.Fatalf("FDSetNonBlock: %v", err)
	}

	sel, err := ioselect.New(ioselect.Config{MaxWaitTimeout: time.Second}, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sel.Close()

	readFired := make(chan struct{}, 1)
	err = sel.Register(int(r.Fd()), ioselect.Handlers{
		OnRead: func(k *fsm.Key) {
			var buf [16]byte
			_, _ = r.Read(buf[:])
			readFired <- struct{}{}
		},
	}, ioselect.Read, "marker")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer sel.Unregister(int(r.Fd()))

	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sel.Select(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Select did not return in time")
	}

	select {
	case <-readFired:
	default:
		t.Fatalf("OnRead callback never fired")
	}
}

func TestNotifyBlockWakesSelectAndDispatchesOnce(t *testing.T) {
	r, _, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	if err := ioselect.FDSetNonBlock(int(r.Fd())); err != nil {
		t.Fatalf("FDSetNonBlock: %v", err)
	}

	sel, err := ioselect.New(ioselect.Config{MaxWaitTimeout: 3 * time.Second}, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sel.Close()

	var blockCount int
	err = sel.Register(int(r.Fd()), ioselect.Handlers{
		OnBlock: func(k *fsm.Key) { blockCount++ },
	}, ioselect.None, nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer sel.Unregister(int(r.Fd()))

	// Coalesce: two notifications before the next Select pass must still
	// fire OnBlock exactly once.
	sel.NotifyBlock(int(r.Fd()))
	sel.NotifyBlock(int(r.Fd()))

	done := make(chan error, 1)
	go func() { done <- sel.Select(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Select did not wake on NotifyBlock")
	}

	if blockCount != 1 {
		t.Fatalf("blockCount = %d, want 1 (coalesced)", blockCount)
	}
}
