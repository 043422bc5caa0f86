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
	"golang.org/x/sys/unix"

	"github.com/sabouaram/socks5d/internal/fsm"
	"github.com/sabouaram/socks5d/internal/ioselect"
)

// COPY is the bidirectional relay of §4.5.7. rx (C2O) and tx (O2C) are
// reused from the handshake phases; back-pressure falls directly out of
// arming interest from each buffer's remaining room/content rather than
// any separate flow-control bookkeeping.

func (c *Conn) onCopyArrival(prev fsm.State, k *fsm.Key) {
	c.updateCopyInterest()
}

func (c *Conn) onCopyRead(k *fsm.Key) fsm.State {
	if k.FD == c.clientFD {
		return c.copyClientRead()
	}
	return c.copyOriginRead()
}

func (c *Conn) onCopyWrite(k *fsm.Key) fsm.State {
	if k.FD == c.clientFD {
		return c.copyClientWrite()
	}
	return c.copyOriginWrite()
}

func (c *Conn) copyClientRead() fsm.State {
	n, err := readInto(c.clientFD, c.rx)
	if (err != nil && !isEAGAIN(err)) || (err == nil && n == 0) {
		c.shutClientRead = true
	}
	return c.afterCopyEvent()
}

func (c *Conn) copyOriginRead() fsm.State {
	n, err := readInto(c.originFD, c.tx)
	if (err != nil && !isEAGAIN(err)) || (err == nil && n == 0) {
		c.shutOriginRead = true
	}
	return c.afterCopyEvent()
}

func (c *Conn) copyOriginWrite() fsm.State {
	before := c.rx.ReadCount()
	err := flushTo(c.originFD, c.rx)
	if delta := before - c.rx.ReadCount(); delta > 0 {
		c.bytesToOrigin += uint64(delta)
		c.engine.metrics.AddBytesReceived(uint64(delta))
	}
	if err != nil && !isEAGAIN(err) {
		c.shutOriginWrite = true
	}
	return c.afterCopyEvent()
}

func (c *Conn) copyClientWrite() fsm.State {
	before := c.tx.ReadCount()
	err := flushTo(c.clientFD, c.tx)
	if delta := before - c.tx.ReadCount(); delta > 0 {
		c.bytesToClient += uint64(delta)
		c.engine.metrics.AddBytesSent(uint64(delta))
	}
	if err != nil && !isEAGAIN(err) {
		c.shutClientWrite = true
	}
	return c.afterCopyEvent()
}

// afterCopyEvent recomputes selector interest for both legs and reports
// whether both directions have fully drained and shut down.
func (c *Conn) afterCopyEvent() fsm.State {
	c.updateCopyInterest()
	if c.shutOriginWrite && c.shutClientWrite {
		return Done
	}
	return Copy
}

// updateCopyInterest propagates a read-shutdown on one leg into a
// write-shutdown on the other once its staging buffer has drained, then
// arms each fd's read/write interest from the buffers' remaining
// room/content — the whole of COPY's back-pressure (§4.5.7).
func (c *Conn) updateCopyInterest() {
	if c.shutClientRead && !c.rx.CanRead() && !c.shutOriginWrite {
		if c.originFD >= 0 {
			_ = unix.Shutdown(c.originFD, unix.SHUT_WR)
		}
		c.shutOriginWrite = true
	}
	if c.shutOriginRead && !c.tx.CanRead() && !c.shutClientWrite {
		_ = unix.Shutdown(c.clientFD, unix.SHUT_WR)
		c.shutClientWrite = true
	}

	var clientMask, originMask ioselect.Mask
	if !c.shutClientRead && c.rx.CanWrite() {
		clientMask |= ioselect.Read
	}
	if !c.shutClientWrite && c.tx.CanRead() {
		clientMask |= ioselect.Write
	}
	if !c.shutOriginRead && c.tx.CanWrite() {
		originMask |= ioselect.Read
	}
	if !c.shutOriginWrite && c.rx.CanRead() {
		originMask |= ioselect.Write
	}

	c.armClient(clientMask)
	c.armOrigin(originMask)
}
