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
	"strings"

	"github.com/sabouaram/socks5d/internal/fsm"
	"github.com/sabouaram/socks5d/internal/ioselect"
)

func (c *Conn) stateDefs() []fsm.Definition {
	return []fsm.Definition{
		{State: int(AuthRead), OnArrival: c.onAuthArrival, OnReadReady: c.onAuthRead},
		{State: int(AuthWrite), OnArrival: c.onAuthWriteArrival, OnWriteReady: c.onAuthWrite},
		{State: int(CmdRead), OnArrival: c.onCmdArrival, OnReadReady: c.onCmdRead},
		{State: int(CmdWrite), OnArrival: c.onCmdWriteArrival, OnWriteReady: c.onCmdWrite},
		{State: int(Done), OnArrival: c.onTerminalArrival},
		{State: int(Error), OnArrival: c.onTerminalArrival},
	}
}

func (c *Conn) onAuthArrival(prev fsm.State, k *fsm.Key) {
	_ = c.engine.selector.SetInterest(c.fd, ioselect.Read)
}

func (c *Conn) onAuthRead(k *fsm.Key) fsm.State {
	n, err := readInto(c.fd, c.rx)
	if err != nil {
		if !isEAGAIN(err) {
			return c.fail()
		}
		return AuthRead
	}
	if n == 0 {
		return c.fail()
	}

	line, ok, wellFormed := scanLine(c.rx)
	if !wellFormed {
		return c.fail()
	}
	if !ok {
		return AuthRead
	}

	fields := strings.Fields(line)
	if len(fields) != 3 || strings.ToUpper(fields[0]) != "AUTH" {
		c.stageLine("-ERR expected AUTH user pass")
		return AuthWrite
	}
	if !c.engine.admins.Verify(fields[1], fields[2]) {
		c.stageLine("-ERR auth failed")
		return AuthWrite
	}

	c.username = fields[1]
	c.stageLine("+OK")
	return AuthWrite
}

func (c *Conn) onAuthWriteArrival(prev fsm.State, k *fsm.Key) {
	_ = c.engine.selector.SetInterest(c.fd, ioselect.Write)
}

func (c *Conn) onAuthWrite(k *fsm.Key) fsm.State {
	if err := flushTo(c.fd, c.tx); err != nil {
		if !isEAGAIN(err) {
			return c.fail()
		}
		return AuthWrite
	}
	if c.tx.CanRead() {
		return AuthWrite
	}
	if c.username == "" {
		return c.fail()
	}
	return CmdRead
}

func (c *Conn) onCmdArrival(prev fsm.State, k *fsm.Key) {
	_ = c.engine.selector.SetInterest(c.fd, ioselect.Read)
}

func (c *Conn) onCmdRead(k *fsm.Key) fsm.State {
	n, err := readInto(c.fd, c.rx)
	if err != nil {
		if !isEAGAIN(err) {
			return c.fail()
		}
		return CmdRead
	}
	if n == 0 {
		return c.fail()
	}

	line, ok, wellFormed := scanLine(c.rx)
	if !wellFormed {
		c.stageLine("-ERR line too long")
		c.quit = true
		return CmdWrite
	}
	if !ok {
		return CmdRead
	}

	reply, quit := c.dispatch(line)
	c.stageLine(reply)
	c.quit = quit
	return CmdWrite
}

func (c *Conn) onCmdWriteArrival(prev fsm.State, k *fsm.Key) {
	_ = c.engine.selector.SetInterest(c.fd, ioselect.Write)
}

func (c *Conn) onCmdWrite(k *fsm.Key) fsm.State {
	if err := flushTo(c.fd, c.tx); err != nil {
		if !isEAGAIN(err) {
			return c.fail()
		}
		return CmdWrite
	}
	if c.tx.CanRead() {
		return CmdWrite
	}
	if c.quit {
		return Done
	}
	return CmdRead
}

func (c *Conn) onTerminalArrival(prev fsm.State, k *fsm.Key) {
	c.teardown()
}
