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

package socks5_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/sabouaram/socks5d/internal/socks5"
	"github.com/sabouaram/socks5d/internal/ringbuf"
)

// feedOneByte writes src into buf one byte at a time between calls to
// parse, the way a chunked TCP delivery would; parse must see Incomplete
// on every call but the last and never lose already-staged bytes (§8
// framing invariance / cursor safety).
func feedOneByte(buf *ringbuf.Buffer, src []byte, parse func() ParseStatus) {
	for _, b := range src {
		buf.WriteOne(b)
		status := parse()
		GinkgoWriter.Printf("fed %d bytes, status=%v\n", buf.ReadCount(), status)
	}
}

var _ = Describe("greeting framing", func() {
	It("parses a complete greeting in one shot", func() {
		buf := ringbuf.New(64)
		for _, b := range []byte{0x05, 0x02, 0x00, 0x02} {
			buf.WriteOne(b)
		}
		status, g, err := ParseGreeting(buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(OK))
		Expect(g.Methods).To(Equal([]byte{0x00, 0x02}))
		Expect(g.HasMethod(MethodUserPassword)).To(BeTrue())
		Expect(buf.CanRead()).To(BeFalse())
	})

	It("restores the cursor across any chunk boundary (framing invariance)", func() {
		buf := ringbuf.New(64)
		full := []byte{0x05, 0x01, 0x02}

		var last ParseStatus
		for i := 0; i < len(full)-1; i++ {
			buf.WriteOne(full[i])
			last, _, _ = ParseGreeting(buf)
			Expect(last).To(Equal(Incomplete))
		}
		buf.WriteOne(full[len(full)-1])
		status, g, err := ParseGreeting(buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(OK))
		Expect(g.Methods).To(Equal([]byte{0x02}))
	})

	It("rejects an unsupported version as malformed", func() {
		buf := ringbuf.New(64)
		for _, b := range []byte{0x04, 0x01, 0x00} {
			buf.WriteOne(b)
		}
		status, _, err := ParseGreeting(buf)
		Expect(status).To(Equal(Malformed))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("auth subnegotiation framing", func() {
	It("round-trips username and password", func() {
		buf := ringbuf.New(64)
		msg := []byte{0x01, 0x05, 'a', 'l', 'i', 'c', 'e', 0x04, 'p', 'a', 's', 's'}
		for _, b := range msg {
			buf.WriteOne(b)
		}
		status, req, err := ParseAuthRequest(buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(OK))
		Expect(req.Username).To(Equal("alice"))
		Expect(req.Password).To(Equal("pass"))
	})

	It("reports incomplete when the password is still arriving", func() {
		buf := ringbuf.New(64)
		for _, b := range []byte{0x01, 0x02, 'h', 'i', 0x03, 'p', 'w'} {
			buf.WriteOne(b)
		}
		status, _, err := ParseAuthRequest(buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(Incomplete))
		Expect(buf.ReadCount()).To(Equal(7)) // nothing consumed
	})
})

var _ = Describe("request framing", func() {
	It("parses an IPv4 CONNECT request", func() {
		buf := ringbuf.New(64)
		msg := []byte{0x05, CmdConnect, 0x00, ATYPIPv4, 93, 184, 216, 34, 0x00, 0x50}
		for _, b := range msg {
			buf.WriteOne(b)
		}
		status, req, err := ParseRequest(buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(OK))
		Expect(req.Host).To(Equal("93.184.216.34"))
		Expect(req.Port).To(Equal(uint16(80)))
	})

	It("parses a domain CONNECT request", func() {
		buf := ringbuf.New(64)
		host := "example.com"
		msg := append([]byte{0x05, CmdConnect, 0x00, ATYPDomain, byte(len(host))}, host...)
		msg = append(msg, 0x01, 0xBB)
		for _, b := range msg {
			buf.WriteOne(b)
		}
		status, req, err := ParseRequest(buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(OK))
		Expect(req.Host).To(Equal(host))
		Expect(req.Port).To(Equal(uint16(443)))
	})

	It("normalizes an internationalized domain name to its ASCII form", func() {
		buf := ringbuf.New(64)
		host := "münchen.example"
		msg := append([]byte{0x05, CmdConnect, 0x00, ATYPDomain, byte(len(host))}, host...)
		msg = append(msg, 0x00, 0x50)
		for _, b := range msg {
			buf.WriteOne(b)
		}
		status, req, err := ParseRequest(buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(OK))
		Expect(req.Host).To(Equal("xn--mnchen-3ya.example"))
	})

	It("reports a typed ProtocolError with the right reply byte for an unsupported ATYP", func() {
		buf := ringbuf.New(64)
		for _, b := range []byte{0x05, CmdConnect, 0x00, 0x02, 0x00, 0x00} {
			buf.WriteOne(b)
		}
		status, _, err := ParseRequest(buf)
		Expect(status).To(Equal(Malformed))
		var protoErr *ProtocolError
		Expect(errors.As(err, &protoErr)).To(BeTrue())
		Expect(protoErr.Reply).To(Equal(ReplyAddrTypeNotSupp))
	})

	It("reports a typed ProtocolError with the right reply byte for an unsupported CMD", func() {
		buf := ringbuf.New(64)
		for _, b := range []byte{0x05, 0x02, 0x00, ATYPIPv4, 1, 2, 3, 4, 0x00, 0x50} {
			buf.WriteOne(b)
		}
		status, _, err := ParseRequest(buf)
		Expect(status).To(Equal(Malformed))
		var protoErr *ProtocolError
		Expect(errors.As(err, &protoErr)).To(BeTrue())
		Expect(protoErr.Reply).To(Equal(ReplyCommandNotSupported))
	})

	It("never advances the cursor on an incomplete IPv6 request", func() {
		buf := ringbuf.New(64)
		for _, b := range []byte{0x05, CmdConnect, 0x00, ATYPIPv6, 0x20, 0x01} {
			buf.WriteOne(b)
		}
		before := buf.ReadCount()
		status, _, err := ParseRequest(buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(Incomplete))
		Expect(buf.ReadCount()).To(Equal(before))
	})
})

var _ = Describe("WriteReply", func() {
	It("always uses a zeroed BND.ADDR/BND.PORT", func() {
		b := WriteReply(ReplySucceeded)
		Expect(b).To(Equal([]byte{0x05, ReplySucceeded, 0x00, ATYPIPv4, 0, 0, 0, 0, 0, 0}))
	})
})
