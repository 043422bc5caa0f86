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

package mgmt

import (
	stderrors "errors"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/socks5d/internal/ringbuf"
)

func isEAGAIN(err error) bool {
	return stderrors.Is(err, unix.EAGAIN) || stderrors.Is(err, unix.EWOULDBLOCK)
}

func readInto(fd int, buf *ringbuf.Buffer) (int, error) {
	p := buf.WritePtr()
	if len(p) == 0 {
		return 0, nil
	}
	n, err := unix.Read(fd, p)
	if n > 0 {
		buf.WriteAdv(n)
	}
	return n, err
}

func flushTo(fd int, buf *ringbuf.Buffer) error {
	for buf.CanRead() {
		p := buf.ReadPtr()
		n, err := unix.Write(fd, p)
		if n > 0 {
			buf.ReadAdv(n)
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}
