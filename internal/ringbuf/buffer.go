/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package ringbuf implements the fixed-capacity byte region used to stage
// every read and write the proxy performs: one read cursor, one write
// cursor, no wrap-around. Callers drain the readable span and must Reset
// once the write cursor reaches capacity before more data can be staged.
package ringbuf

import "fmt"

// Buffer is a fixed-length byte region with independent read (R) and write
// (W) cursors such that 0 <= R <= W <= cap(storage). The readable span is
// [R,W); the writable span is [W,cap). Buffer is not safe for concurrent
// use; callers on the event loop own it exclusively.
type Buffer struct {
	data []byte
	r    int
	w    int
}

// New allocates a Buffer backed by a freshly made slice of the given
// capacity.
func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Init rebinds the Buffer to an externally supplied backing slice, the way
// a connection record keeps its buffers inline rather than allocating on
// each accept. Init also resets the cursors.
func (b *Buffer) Init(storage []byte) {
	b.data = storage
	b.r = 0
	b.w = 0
}

// Cap returns the total capacity of the backing storage.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Reset sets both cursors back to zero, discarding any staged bytes.
func (b *Buffer) Reset() {
	b.r = 0
	b.w = 0
}

// CanRead reports whether the readable span is non-empty.
func (b *Buffer) CanRead() bool {
	return b.w > b.r
}

// CanWrite reports whether the writable span is non-empty.
func (b *Buffer) CanWrite() bool {
	return b.w < len(b.data)
}

// ReadCount returns the number of bytes currently staged for reading.
func (b *Buffer) ReadCount() int {
	return b.w - b.r
}

// WriteCount returns the number of bytes of free space left to write into.
func (b *Buffer) WriteCount() int {
	return len(b.data) - b.w
}

// ReadPtr returns the contiguous readable slice [R,W). Callers pass this
// directly to a one-shot Read/recv call.
func (b *Buffer) ReadPtr() []byte {
	return b.data[b.r:b.w]
}

// ReadAdv advances the read cursor by n, which must not exceed ReadCount.
// Advancing past the readable span is a programmer error. ReadAdv never
// touches the write cursor or reclaims space on its own — a byte a
// parser hasn't consumed yet (because Restore rewound past it) must
// stay exactly where it is in data, so only Reset (an explicit,
// caller-driven operation) may bring both cursors back to zero.
func (b *Buffer) ReadAdv(n int) {
	if n < 0 || b.r+n > b.w {
		panic(fmt.Sprintf("ringbuf: ReadAdv(%d) exceeds readable count %d", n, b.ReadCount()))
	}
	b.r += n
}

// WritePtr returns the contiguous writable slice [W,cap). Callers pass
// this directly to a one-shot Write/send call.
func (b *Buffer) WritePtr() []byte {
	return b.data[b.w:]
}

// WriteAdv advances the write cursor by n, which must not exceed
// WriteCount. Advancing past the writable span is a programmer error.
func (b *Buffer) WriteAdv(n int) {
	if n < 0 || b.w+n > len(b.data) {
		panic(fmt.Sprintf("ringbuf: WriteAdv(%d) exceeds writable count %d", n, b.WriteCount()))
	}
	b.w += n
}

// ReadOne consumes and returns the next readable byte. It panics if the
// buffer is empty; callers must check CanRead first.
func (b *Buffer) ReadOne() byte {
	if !b.CanRead() {
		panic("ringbuf: ReadOne on empty buffer")
	}
	v := b.data[b.r]
	b.ReadAdv(1)
	return v
}

// WriteOne stages a single byte. It panics if the buffer is full; callers
// must check CanWrite first.
func (b *Buffer) WriteOne(v byte) {
	if !b.CanWrite() {
		panic("ringbuf: WriteOne on full buffer")
	}
	b.data[b.w] = v
	b.WriteAdv(1)
}

// Mark is a snapshot of the read cursor, used by segmented-message parsers
// to restore position on an incomplete read (see ringbuf.Buffer.Restore).
type Mark struct {
	r int
}

// Snapshot captures the current read cursor so a parser can restore it if
// the message it is decoding turns out to be incomplete.
func (b *Buffer) Snapshot() Mark {
	return Mark{r: b.r}
}

// Restore rewinds the read cursor to a previously captured Mark. It never
// advances the cursor forward of where it already is.
func (b *Buffer) Restore(m Mark) {
	if m.r < b.r {
		b.r = m.r
	}
}
