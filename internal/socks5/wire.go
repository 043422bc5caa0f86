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
	"fmt"
	"net"

	"golang.org/x/net/idna"

	"github.com/sabouaram/socks5d/internal/ringbuf"
)

// Wire constants, RFC 1928 / RFC 1929.
const (
	Version5 byte = 0x05

	MethodNoAuth         byte = 0x00
	MethodUserPassword   byte = 0x02
	MethodNoAcceptable   byte = 0xFF

	AuthVersion1  byte = 0x01
	AuthSuccess   byte = 0x00
	AuthFailure   byte = 0x01

	CmdConnect byte = 0x01

	ATYPIPv4   byte = 0x01
	ATYPDomain byte = 0x03
	ATYPIPv6   byte = 0x04

	ReplySucceeded           byte = 0x00
	ReplyGeneralFailure      byte = 0x01
	ReplyCommandNotSupported byte = 0x07
	ReplyAddrTypeNotSupp     byte = 0x08
	ReplyNetworkUnreachable  byte = 0x04
	ReplyConnectionRefused   byte = 0x05
)

// ParseStatus is the outcome of attempting to decode one protocol
// message from a Buffer.
type ParseStatus int

const (
	// Incomplete means not enough bytes have arrived yet; the buffer's
	// read cursor has been restored to where it was on entry (§8
	// "cursor safety").
	Incomplete ParseStatus = iota
	OK
	Malformed
)

// Greeting is the parsed RFC 1928 §3 client greeting.
type Greeting struct {
	Methods []byte
}

// ParseGreeting decodes VER(1) NMETHODS(1) METHODS(NMETHODS), tolerating
// partial delivery across any chunk boundary (§8 "framing invariance").
func ParseGreeting(buf *ringbuf.Buffer) (ParseStatus, Greeting, error) {
	mark := buf.Snapshot()

	if !buf.CanRead() {
		return Incomplete, Greeting{}, nil
	}
	ver := buf.ReadOne()
	if ver != Version5 {
		return Malformed, Greeting{}, fmt.Errorf("socks5: unsupported greeting version 0x%02x", ver)
	}
	if !buf.CanRead() {
		buf.Restore(mark)
		return Incomplete, Greeting{}, nil
	}
	n := int(buf.ReadOne())
	if buf.ReadCount() < n {
		buf.Restore(mark)
		return Incomplete, Greeting{}, nil
	}
	methods := make([]byte, n)
	for i := 0; i < n; i++ {
		methods[i] = buf.ReadOne()
	}
	return OK, Greeting{Methods: methods}, nil
}

// HasMethod reports whether m appears in g.Methods.
func (g Greeting) HasMethod(m byte) bool {
	for _, x := range g.Methods {
		if x == m {
			return true
		}
	}
	return false
}

// AuthRequest is the parsed RFC 1929 subnegotiation.
type AuthRequest struct {
	Username string
	Password string
}

// ParseAuthRequest decodes VER(1) ULEN(1) UNAME(ULEN) PLEN(1)
// PASSWD(PLEN), restoring the read cursor on any incomplete delivery.
func ParseAuthRequest(buf *ringbuf.Buffer) (ParseStatus, AuthRequest, error) {
	mark := buf.Snapshot()

	if !buf.CanRead() {
		return Incomplete, AuthRequest{}, nil
	}
	ver := buf.ReadOne()
	if ver != AuthVersion1 {
		return Malformed, AuthRequest{}, fmt.Errorf("socks5: unsupported auth subnegotiation version 0x%02x", ver)
	}

	if !buf.CanRead() {
		buf.Restore(mark)
		return Incomplete, AuthRequest{}, nil
	}
	ulen := int(buf.ReadOne())
	if buf.ReadCount() < ulen {
		buf.Restore(mark)
		return Incomplete, AuthRequest{}, nil
	}
	uname := make([]byte, ulen)
	for i := 0; i < ulen; i++ {
		uname[i] = buf.ReadOne()
	}

	if !buf.CanRead() {
		buf.Restore(mark)
		return Incomplete, AuthRequest{}, nil
	}
	plen := int(buf.ReadOne())
	if buf.ReadCount() < plen {
		buf.Restore(mark)
		return Incomplete, AuthRequest{}, nil
	}
	pass := make([]byte, plen)
	for i := 0; i < plen; i++ {
		pass[i] = buf.ReadOne()
	}

	return OK, AuthRequest{Username: string(uname), Password: string(pass)}, nil
}

// Request is the parsed RFC 1928 §4 client request.
type Request struct {
	Cmd  byte
	ATYP byte
	Host string // dotted/colon literal, or FQDN for ATYPDomain
	Port uint16
}

// ParseRequest decodes VER CMD RSV ATYP DST.ADDR DST.PORT, restoring the
// read cursor on any incomplete delivery. A recognized-but-unsupported
// CMD or ATYP is reported as Malformed with a typed *ProtocolError so
// the caller can pick the correct reply byte (0x07 vs 0x08).
func ParseRequest(buf *ringbuf.Buffer) (ParseStatus, Request, error) {
	mark := buf.Snapshot()

	need := func(n int) bool {
		if buf.ReadCount() < n {
			buf.Restore(mark)
			return false
		}
		return true
	}

	if !need(4) {
		return Incomplete, Request{}, nil
	}
	ver := buf.ReadOne()
	cmd := buf.ReadOne()
	_ = buf.ReadOne() // RSV
	atyp := buf.ReadOne()

	if ver != Version5 {
		return Malformed, Request{}, fmt.Errorf("socks5: unsupported request version 0x%02x", ver)
	}

	var host string
	switch atyp {
	case ATYPIPv4:
		if !need(4) {
			return Incomplete, Request{}, nil
		}
		var b [4]byte
		for i := range b {
			b[i] = buf.ReadOne()
		}
		host = net.IP(b[:]).String()
	case ATYPIPv6:
		if !need(16) {
			return Incomplete, Request{}, nil
		}
		var b [16]byte
		for i := range b {
			b[i] = buf.ReadOne()
		}
		host = net.IP(b[:]).String()
	case ATYPDomain:
		if !buf.CanRead() {
			buf.Restore(mark)
			return Incomplete, Request{}, nil
		}
		dlen := int(buf.ReadOne())
		if !need(dlen) {
			return Incomplete, Request{}, nil
		}
		d := make([]byte, dlen)
		for i := range d {
			d[i] = buf.ReadOne()
		}
		// A client may send an internationalized domain name as UTF-8;
		// normalize to its ASCII/Punycode form so the resolver always
		// sees something net.Resolver can look up. A name that fails
		// IDNA validation is passed through as-is and left to the
		// resolver to reject.
		host = string(d)
		if ascii, err := idna.Lookup.ToASCII(host); err == nil {
			host = ascii
		}
	default:
		return Malformed, Request{}, &ProtocolError{Reply: ReplyAddrTypeNotSupp, Msg: fmt.Sprintf("unsupported ATYP 0x%02x", atyp)}
	}

	if !need(2) {
		return Incomplete, Request{}, nil
	}
	hi := buf.ReadOne()
	lo := buf.ReadOne()
	port := uint16(hi)<<8 | uint16(lo)

	if cmd != CmdConnect {
		return Malformed, Request{}, &ProtocolError{Reply: ReplyCommandNotSupported, Msg: fmt.Sprintf("unsupported CMD 0x%02x", cmd)}
	}

	return OK, Request{Cmd: cmd, ATYP: atyp, Host: host, Port: port}, nil
}

// WriteReply renders the 10-byte RFC 1928 §4 reply with a fixed
// BND.ADDR=0.0.0.0, BND.PORT=0 (§4.5.6 — clients must not rely on the
// bound address).
func WriteReply(rep byte) []byte {
	return []byte{Version5, rep, 0x00, ATYPIPv4, 0, 0, 0, 0, 0, 0}
}

// ProtocolError carries the SOCKS reply byte a malformed request should
// still receive before the connection transitions to ERROR (§7).
type ProtocolError struct {
	Reply byte
	Msg   string
}

func (e *ProtocolError) Error() string { return e.Msg }
