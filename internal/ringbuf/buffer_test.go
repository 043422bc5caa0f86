package ringbuf_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sabouaram/socks5d/internal/ringbuf"
)

func TestWriteReadRoundTrip(t *testing.T) {
	b := ringbuf.New(8)

	if !b.CanWrite() || b.CanRead() {
		t.Fatalf("fresh buffer should be writable and not readable")
	}

	n := copy(b.WritePtr(), []byte("hi"))
	b.WriteAdv(n)

	if got, want := b.ReadCount(), 2; got != want {
		t.Fatalf("ReadCount() = %d, want %d", got, want)
	}

	got := append([]byte(nil), b.ReadPtr()...)
	if diff := cmp.Diff([]byte("hi"), got); diff != "" {
		t.Fatalf("ReadPtr mismatch (-want +got):\n%s", diff)
	}

	b.ReadAdv(2)
	if b.CanRead() {
		t.Fatalf("buffer should be empty after draining all readable bytes")
	}
}

func TestReadAdvPastAvailablePanics(t *testing.T) {
	b := ringbuf.New(4)
	n := copy(b.WritePtr(), []byte("ab"))
	b.WriteAdv(n)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected ReadAdv beyond readable count to panic")
		}
	}()
	b.ReadAdv(3)
}

func TestWriteAdvPastCapacityPanics(t *testing.T) {
	b := ringbuf.New(2)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected WriteAdv beyond writable count to panic")
		}
	}()
	b.WriteAdv(3)
}

func TestSnapshotRestoreCursorSafety(t *testing.T) {
	b := ringbuf.New(16)
	n := copy(b.WritePtr(), []byte("VERNMETHODS"))
	b.WriteAdv(n)

	m := b.Snapshot()
	first := b.ReadOne()
	if first != 'V' {
		t.Fatalf("ReadOne() = %q, want 'V'", first)
	}

	// Parser discovers the message is incomplete and restores.
	b.Restore(m)

	again := b.ReadOne()
	if again != first {
		t.Fatalf("after Restore, next ReadOne() = %q, want %q", again, first)
	}
}

func TestResetDiscardsStagedBytes(t *testing.T) {
	b := ringbuf.New(4)
	n := copy(b.WritePtr(), []byte("ab"))
	b.WriteAdv(n)

	b.Reset()

	if b.CanRead() {
		t.Fatalf("Reset should leave the buffer with nothing readable")
	}
	if got := b.WriteCount(); got != 4 {
		t.Fatalf("WriteCount() after Reset = %d, want 4", got)
	}
}

func TestDrainingDoesNotReclaimCapacityOnItsOwn(t *testing.T) {
	b := ringbuf.New(4)
	n := copy(b.WritePtr(), []byte("abcd"))
	b.WriteAdv(n)
	b.ReadAdv(4)

	if got := b.WriteCount(); got != 0 {
		t.Fatalf("WriteCount() after fully draining = %d, want 0 (only Reset reclaims capacity)", got)
	}
	b.Reset()
	if got := b.WriteCount(); got != 4 {
		t.Fatalf("WriteCount() after explicit Reset = %d, want 4", got)
	}
}

// TestReadAdvDoesNotClobberAnUnreadByteAcrossRestore guards the exact bug
// a self-reclaiming ReadAdv would reintroduce: draining the buffer down
// to r==w must never silently rewind both cursors to 0, because a
// parser may still Restore to a Mark it took before that drain and
// expect the byte it already "read" to still be sitting where it was.
func TestReadAdvDoesNotClobberAnUnreadByteAcrossRestore(t *testing.T) {
	b := ringbuf.New(4)
	b.WriteOne('V')

	mark := b.Snapshot()
	v := b.ReadOne() // r now equals w; must not reset w to 0
	if v != 'V' {
		t.Fatalf("ReadOne() = %q, want 'V'", v)
	}

	b.Restore(mark) // parser discovers the message is incomplete

	b.WriteOne('N') // next chunk arrives
	if got := b.ReadCount(); got != 2 {
		t.Fatalf("ReadCount() = %d, want 2 (both 'V' and 'N' still staged)", got)
	}
	first := b.ReadOne()
	if first != 'V' {
		t.Fatalf("first byte after Restore+append = %q, want 'V' (must not have been overwritten)", first)
	}
	second := b.ReadOne()
	if second != 'N' {
		t.Fatalf("second byte = %q, want 'N'", second)
	}
}
