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
	"net"

	"github.com/sabouaram/socks5d/internal/fsm"
	"github.com/sabouaram/socks5d/internal/ioselect"
)

// -- REQUEST_READ -----------------------------------------------------

func (c *Conn) onRequestArrival(prev fsm.State, k *fsm.Key) {
	c.rx.Reset()
	c.armClient(ioselect.Read)
}

func (c *Conn) onRequestRead(k *fsm.Key) fsm.State {
	n, err := readInto(c.clientFD, c.rx)
	if err != nil {
		if !isEAGAIN(err) {
			c.shutClientRead = true
			return c.fail(KindTransport)
		}
		return RequestRead
	}
	if n == 0 {
		c.shutClientRead = true
		return c.fail(KindTransport)
	}

	status, req, perr := ParseRequest(c.rx)
	switch status {
	case Incomplete:
		return RequestRead
	case Malformed:
		var protoErr *ProtocolError
		if stderrors.As(perr, &protoErr) {
			c.requestFailed = true
			c.failKind = KindProtocol
			c.stageReply(protoErr.Reply)
			return RequestWrite
		}
		return c.fail(KindProtocol)
	}

	c.targetHost = req.Host
	c.targetPort = req.Port

	if req.ATYP == ATYPDomain {
		return RequestResolving
	}

	ip := net.ParseIP(req.Host)
	c.resolvedAddrs = []net.IPAddr{{IP: ip}}
	c.addrCursor = 0
	return RequestConnecting
}

// -- REQUEST_RESOLVING --------------------------------------------------

func (c *Conn) onResolvingArrival(prev fsm.State, k *fsm.Key) {
	_ = c.engine.selector.SetInterest(c.clientFD, ioselect.None)
	c.resolverSlot = c.engine.resolver.Resolve(c.engine.ctx, c.id, c.targetHost, func() {
		c.engine.selector.NotifyBlock(c.clientFD)
	})
}

func (c *Conn) onResolvingBlock(k *fsm.Key) fsm.State {
	if c.resolverSlot == nil {
		return RequestResolving
	}
	res, ok := c.resolverSlot.TryTake()
	if !ok {
		return RequestResolving // spurious wake; keep waiting
	}
	c.engine.resolver.Forget(c.id)

	if res.Err != nil || len(res.Addrs) == 0 {
		c.requestFailed = true
		c.failKind = KindUpstream
		c.stageReply(ReplyNetworkUnreachable)
		return RequestWrite
	}

	// The resolver's address list is installed before the connecting
	// state is entered, so REQUEST_CONNECTING never races a lookup.
	c.resolvedAddrs = res.Addrs
	c.addrCursor = 0
	return RequestConnecting
}

// -- REQUEST_WRITE --------------------------------------------------------

func (c *Conn) onRequestWriteArrival(prev fsm.State, k *fsm.Key) {
	c.armClient(ioselect.Write)
}

func (c *Conn) onRequestWrite(k *fsm.Key) fsm.State {
	if err := flushTo(c.clientFD, c.tx); err != nil {
		if !isEAGAIN(err) {
			c.shutClientWrite = true
			return c.fail(KindTransport)
		}
		return RequestWrite
	}
	if c.tx.CanRead() {
		return RequestWrite
	}
	if c.requestFailed {
		// failKind was already set by whichever REQUEST_READ/RESOLVING/
		// CONNECTING branch raised requestFailed; fail() with no
		// argument would overwrite it back to the KindProtocol default.
		return Error
	}
	return Copy
}

// stageReply loads c.tx with the 10-byte SOCKS reply for rep.
func (c *Conn) stageReply(rep byte) {
	c.tx.Reset()
	for _, b := range WriteReply(rep) {
		c.tx.WriteOne(b)
	}
}
