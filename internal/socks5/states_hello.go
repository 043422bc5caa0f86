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
	"github.com/sabouaram/socks5d/internal/fsm"
	"github.com/sabouaram/socks5d/internal/ioselect"
)

// -- HELLO_READ ---------------------------------------------------------

func (c *Conn) onHelloArrival(prev fsm.State, k *fsm.Key) {
	c.rx.Reset()
	c.armClient(ioselect.Read)
}

func (c *Conn) onHelloRead(k *fsm.Key) fsm.State {
	n, err := readInto(c.clientFD, c.rx)
	if err != nil {
		if !isEAGAIN(err) {
			c.shutClientRead = true
			return c.fail(KindTransport)
		}
		return HelloRead
	}
	if n == 0 {
		c.shutClientRead = true
		return c.fail(KindTransport)
	}

	status, greet, perr := ParseGreeting(c.rx)
	switch status {
	case Incomplete:
		return HelloRead
	case Malformed:
		_ = perr
		return c.fail(KindProtocol)
	}

	c.greeting = greet
	c.tx.Reset()
	if greet.HasMethod(MethodUserPassword) {
		c.tx.WriteOne(Version5)
		c.tx.WriteOne(MethodUserPassword)
	} else {
		c.tx.WriteOne(Version5)
		c.tx.WriteOne(MethodNoAcceptable)
	}
	return HelloWrite
}

// -- HELLO_WRITE ----------------------------------------------------------

func (c *Conn) onHelloWriteArrival(prev fsm.State, k *fsm.Key) {
	c.armClient(ioselect.Write)
}

func (c *Conn) onHelloWrite(k *fsm.Key) fsm.State {
	if err := flushTo(c.clientFD, c.tx); err != nil {
		if !isEAGAIN(err) {
			c.shutClientWrite = true
			return c.fail(KindTransport)
		}
		return HelloWrite
	}
	if c.tx.CanRead() {
		return HelloWrite // partial write; stay until drained
	}

	if !c.greeting.HasMethod(MethodUserPassword) {
		return c.fail(KindAuth)
	}
	return AuthRead
}

// -- AUTH_READ ------------------------------------------------------------

func (c *Conn) onAuthArrival(prev fsm.State, k *fsm.Key) {
	c.rx.Reset()
	c.armClient(ioselect.Read)
}

func (c *Conn) onAuthRead(k *fsm.Key) fsm.State {
	n, err := readInto(c.clientFD, c.rx)
	if err != nil {
		if !isEAGAIN(err) {
			c.shutClientRead = true
			return c.fail(KindTransport)
		}
		return AuthRead
	}
	if n == 0 {
		c.shutClientRead = true
		return c.fail(KindTransport)
	}

	status, req, perr := ParseAuthRequest(c.rx)
	switch status {
	case Incomplete:
		return AuthRead
	case Malformed:
		_ = perr
		return c.fail(KindProtocol)
	}

	ok := c.engine.users.Verify(req.Username, req.Password)

	c.tx.Reset()
	c.tx.WriteOne(AuthVersion1)
	if ok {
		c.username = req.Username
		c.tx.WriteOne(AuthSuccess)
	} else {
		c.tx.WriteOne(AuthFailure)
	}
	// req.Password is discarded here along with the rest of req; no
	// in-scratch copy is retained once verification has happened.
	return AuthWrite
}

// -- AUTH_WRITE -----------------------------------------------------------

func (c *Conn) onAuthWriteArrival(prev fsm.State, k *fsm.Key) {
	c.armClient(ioselect.Write)
}

func (c *Conn) onAuthWrite(k *fsm.Key) fsm.State {
	if err := flushTo(c.clientFD, c.tx); err != nil {
		if !isEAGAIN(err) {
			c.shutClientWrite = true
			return c.fail(KindTransport)
		}
		return AuthWrite
	}
	if c.tx.CanRead() {
		return AuthWrite
	}

	if c.username == "" {
		return c.fail(KindAuth)
	}
	return RequestRead
}
