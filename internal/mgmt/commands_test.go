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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/socks5d/internal/metrics"
	"github.com/sabouaram/socks5d/internal/ringbuf"
	"github.com/sabouaram/socks5d/internal/users"
)

func newRingbufWithBytes(s string) *ringbuf.Buffer {
	buf := ringbuf.New(bufferSize)
	for i := 0; i < len(s); i++ {
		buf.WriteOne(s[i])
	}
	return buf
}

// newTestConn builds a Conn wired to a fresh engine, bypassing the
// socket/selector plumbing that acceptOne normally sets up; dispatch
// only ever touches c.engine's stores and metrics.
func newTestConn() *Conn {
	e := &Engine{
		admins:     users.New(),
		socksUsers: users.New(),
		metrics:    metrics.New(),
	}
	return &Conn{engine: e}
}

var _ = Describe("command dispatch", func() {
	var c *Conn

	BeforeEach(func() {
		c = newTestConn()
	})

	It("rejects an empty line", func() {
		reply, quit := c.dispatch("")
		Expect(reply).To(Equal("-ERR empty command"))
		Expect(quit).To(BeFalse())
	})

	It("rejects an unknown command", func() {
		reply, quit := c.dispatch("BOGUS")
		Expect(reply).To(Equal("-ERR unknown command"))
		Expect(quit).To(BeFalse())
	})

	It("is case-insensitive on the verb", func() {
		reply, _ := c.dispatch("help")
		Expect(reply).To(Equal(helpText))
	})

	It("signals quit on QUIT", func() {
		reply, quit := c.dispatch("QUIT")
		Expect(reply).To(Equal("+OK bye"))
		Expect(quit).To(BeTrue())
	})

	It("reports an empty user list before any ADDUSER", func() {
		reply, _ := c.dispatch("USERS")
		Expect(reply).To(Equal("+OK (none)"))
	})

	It("adds, lists, and removes a SOCKS user", func() {
		reply, _ := c.dispatch("ADDUSER alice s3cret")
		Expect(reply).To(Equal("+OK"))

		reply, _ = c.dispatch("USERS")
		Expect(reply).To(Equal("+OK alice"))

		Expect(c.engine.socksUsers.Verify("alice", "s3cret")).To(BeTrue())

		reply, _ = c.dispatch("DELUSER alice")
		Expect(reply).To(Equal("+OK"))

		reply, _ = c.dispatch("DELUSER alice")
		Expect(reply).To(Equal("-ERR no such user"))
	})

	It("rejects ADDUSER with the wrong number of fields", func() {
		reply, _ := c.dispatch("ADDUSER onlyuser")
		Expect(reply).To(Equal("-ERR usage: ADDUSER user pass"))
	})

	It("rejects DELUSER with the wrong number of fields", func() {
		reply, _ := c.dispatch("DELUSER")
		Expect(reply).To(Equal("-ERR usage: DELUSER user"))
	})

	It("reports a STATS line reflecting metrics activity", func() {
		c.engine.metrics.ConnectionOpened()
		c.engine.metrics.ConnectionOpened()
		c.engine.metrics.ConnectionSucceeded()
		c.engine.metrics.AddBytesSent(128)

		reply, _ := c.dispatch("STATS")
		Expect(reply).To(ContainSubstring("total=2"))
		Expect(reply).To(ContainSubstring("current=2"))
		Expect(reply).To(ContainSubstring("success=1"))
		Expect(reply).To(ContainSubstring("bytes_sent=128"))
	})
})

var _ = Describe("line framing", func() {
	It("extracts a complete newline-terminated line", func() {
		buf := newRingbufWithBytes("AUTH a b\n")
		line, complete, ok := scanLine(buf)
		Expect(ok).To(BeTrue())
		Expect(complete).To(BeTrue())
		Expect(line).To(Equal("AUTH a b"))
	})

	It("reports incomplete without a trailing newline", func() {
		buf := newRingbufWithBytes("AUTH a")
		_, complete, ok := scanLine(buf)
		Expect(ok).To(BeTrue())
		Expect(complete).To(BeFalse())
	})
})
