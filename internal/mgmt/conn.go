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

// Package mgmt is the line-oriented administration protocol the design
// frames as an external collaborator. original_source/src/server/mgmt.c
// carries a full implementation, so the server side is built here in
// the same idiom as internal/socks5 (shared fsm/ioselect runtime); the
// interactive admin client remains out of scope.
package mgmt

import (
	"time"

	"github.com/sabouaram/socks5d/internal/fsm"
	"github.com/sabouaram/socks5d/internal/ringbuf"
)

const bufferSize = 1024

// Connection states: authenticate once, then loop CmdRead/CmdWrite
// until QUIT or an error, mirroring MGMT_AUTH -> MGMT_CMD -> MGMT_WRITE
// -> {DONE, ERROR}.
const (
	AuthRead fsm.State = iota
	AuthWrite
	CmdRead
	CmdWrite
	Done
	Error
)

// Conn is one administration session.
type Conn struct {
	engine *Engine

	fd   int
	addr string

	machine *fsm.Machine

	rx *ringbuf.Buffer
	tx *ringbuf.Buffer

	username string
	quit     bool

	torn bool

	startedAt time.Time
}

func newConn(e *Engine, fd int, addr string) *Conn {
	c := &Conn{
		engine:    e,
		fd:        fd,
		addr:      addr,
		rx:        ringbuf.New(bufferSize),
		tx:        ringbuf.New(bufferSize),
		startedAt: time.Now(),
	}
	c.machine = fsm.New(AuthRead, c.stateDefs())
	return c
}

func (c *Conn) key() *fsm.Key {
	return &fsm.Key{Selector: c.engine.selector, FD: c.fd, UserData: c}
}

func (c *Conn) fail() fsm.State { return Error }

// stageLine loads tx with s terminated by a single newline, replacing
// whatever was staged before.
func (c *Conn) stageLine(s string) {
	c.tx.Reset()
	for i := 0; i < len(s); i++ {
		c.tx.WriteOne(s[i])
	}
	c.tx.WriteOne('\n')
}

// scanLine extracts one newline-terminated line from buf without
// requiring the whole ring buffer abstraction to understand text
// framing; an unterminated line that has already consumed the whole
// buffer's capacity is reported as too-long rather than left to grow
// forever.
func scanLine(buf *ringbuf.Buffer) (string, bool, bool) {
	p := buf.ReadPtr()
	for i, b := range p {
		if b == '\n' {
			line := string(p[:i])
			buf.ReadAdv(i + 1)
			if !buf.CanRead() {
				buf.Reset()
			}
			return line, true, true
		}
	}
	if !buf.CanWrite() {
		return "", false, false // buffer full with no newline: malformed
	}
	return "", false, true
}
