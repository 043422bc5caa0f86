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

	"golang.org/x/sys/unix"

	"github.com/sabouaram/socks5d/internal/fsm"
	"github.com/sabouaram/socks5d/internal/ioselect"
)

// onConnectingArrival is the entry point for REQUEST_CONNECTING, reached
// either from an IP-literal request or from a completed resolution. It
// walks c.resolvedAddrs starting at c.addrCursor until one address
// yields a socket with a connect(2) attempt in flight, happy-eyeballs
// style (§4.5.5): each candidate gets one non-blocking connect, and a
// refusal advances the cursor rather than failing the whole request.
func (c *Conn) onConnectingArrival(prev fsm.State, k *fsm.Key) {
	c.dialNext()
}

// dialNext tries candidates from c.addrCursor onward until one accepts
// a non-blocking connect() or the list is exhausted.
func (c *Conn) dialNext() {
	for c.addrCursor < len(c.resolvedAddrs) {
		addr := c.resolvedAddrs[c.addrCursor]
		c.addrCursor++

		fd, err := dialCandidate(addr, c.targetPort)
		if err != nil {
			continue // this candidate refused outright; try the next
		}
		c.attemptedConn = true
		c.originFD = fd
		_ = c.engine.selector.Register(fd, ioselect.Handlers{
			OnRead:  c.engine.dispatchRead,
			OnWrite: c.engine.dispatchWrite,
			OnClose: c.engine.dispatchClose,
		}, ioselect.Write, c)
		return
	}
	c.failExhausted()
}

// failExhausted stages the reply for "no candidate could be reached"
// and schedules a block-ready dispatch so the transition to
// REQUEST_WRITE happens on the next loop tick rather than re-entering
// the state machine from inside an arrival callback.
func (c *Conn) failExhausted() {
	c.requestFailed = true
	c.failKind = KindUpstream
	if c.attemptedConn {
		c.stageReply(ReplyConnectionRefused)
	} else {
		c.stageReply(ReplyNetworkUnreachable)
	}
	c.engine.selector.NotifyBlock(c.clientFD)
}

// dialCandidate opens a non-blocking socket matching addr's family and
// issues connect(2), tolerating EINPROGRESS (the expected outcome for a
// non-blocking connect whose completion is reported later via
// writability, per §4.5.5).
func dialCandidate(addr net.IPAddr, port uint16) (int, error) {
	domain := unix.AF_INET
	if addr.IP.To4() == nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	if err := ioselect.FDSetNonBlock(fd); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}

	var sa unix.Sockaddr
	if domain == unix.AF_INET {
		var a [4]byte
		copy(a[:], addr.IP.To4())
		sa = &unix.SockaddrInet4{Port: int(port), Addr: a}
	} else {
		var a [16]byte
		copy(a[:], addr.IP.To16())
		sa = &unix.SockaddrInet6{Port: int(port), Addr: a, ZoneId: zoneIndex(addr.Zone)}
	}

	if err := unix.Connect(fd, sa); err != nil && !stderrors.Is(err, unix.EINPROGRESS) {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func zoneIndex(zone string) uint32 {
	if zone == "" {
		return 0
	}
	iface, err := net.InterfaceByName(zone)
	if err != nil {
		return 0
	}
	return uint32(iface.Index)
}

// onConnectingWrite fires once the origin socket becomes writable,
// which under non-blocking connect(2) semantics means the attempt has
// completed (successfully or not) and SO_ERROR tells which.
func (c *Conn) onConnectingWrite(k *fsm.Key) fsm.State {
	errno, err := ioselect.SOError(c.originFD)
	if err != nil || errno != 0 {
		_ = c.engine.selector.Unregister(c.originFD)
		_ = unix.Close(c.originFD)
		c.originFD = -1
		c.dialNext()
		return RequestConnecting
	}

	c.requestFailed = false
	c.stageReply(ReplySucceeded)
	return RequestWrite
}

// onConnectingBlock handles the synthetic wake failExhausted schedules
// once every candidate address has been tried and refused.
func (c *Conn) onConnectingBlock(k *fsm.Key) fsm.State {
	return RequestWrite
}
