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

package socks5

import (
	stderrors "errors"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/socks5d/internal/ringbuf"
)

// isEAGAIN reports whether err is the nonblocking "try again" signal
// rather than a real I/O failure.
func isEAGAIN(err error) bool {
	return stderrors.Is(err, unix.EAGAIN) || stderrors.Is(err, unix.EWOULDBLOCK)
}

// readInto performs one nonblocking read(2) from fd into buf's free
// space, advancing the write cursor by however many bytes landed.
func readInto(fd int, buf *ringbuf.Buffer) (int, error) {
	p := buf.WritePtr()
	if len(p) == 0 {
		return 0, nil
	}
	n, err := unix.Read(fd, p)
	if n > 0 {
		buf.WriteAdv(n)
	}
	if err != nil {
		return n, err
	}
	return n, nil
}

// flushTo performs nonblocking write(2) calls draining buf's staged
// bytes into fd until either the buffer empties or the kernel refuses
// more (EAGAIN), whichever comes first. buf is never mid-parse here
// (flushTo only ever drains an outgoing reply or a COPY-phase relay
// leg, neither of which a Snapshot/Restore parser is watching), so once
// it empties out flushTo reclaims the whole region with an explicit
// Reset rather than leaving capacity stranded behind the write cursor.
func flushTo(fd int, buf *ringbuf.Buffer) error {
	for buf.CanRead() {
		p := buf.ReadPtr()
		n, err := unix.Write(fd, p)
		if n > 0 {
			buf.ReadAdv(n)
		}
		if err != nil {
			if !buf.CanRead() {
				buf.Reset()
			}
			return err
		}
		if n == 0 {
			if !buf.CanRead() {
				buf.Reset()
			}
			return nil
		}
	}
	buf.Reset()
	return nil
}
