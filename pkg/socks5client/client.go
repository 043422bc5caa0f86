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

// Package socks5client is a minimal SOCKS5 CONNECT client, mirroring
// original_source/src/client/main.c closely enough to drive integration
// tests against internal/socks5's server without pulling in a full
// third-party SOCKS client library. Not the administration client,
// which remains out of scope.
package socks5client

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Dial connects to proxyAddr, performs the RFC 1928 greeting and RFC
// 1929 username/password subnegotiation, then issues a CONNECT request
// for host:port. On success the returned net.Conn is ready for raw
// application traffic to the target.
func Dial(proxyAddr, username, password, host string, port uint16, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", proxyAddr, timeout)
	if err != nil {
		return nil, errors.Wrap(err, "socks5client: dial proxy")
	}
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	if err := greet(conn, username, password); err != nil {
		conn.Close()
		return nil, err
	}
	if err := request(conn, host, port); err != nil {
		conn.Close()
		return nil, err
	}

	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}

func greet(conn net.Conn, username, password string) error {
	if _, err := conn.Write([]byte{0x05, 0x01, 0x02}); err != nil {
		return errors.Wrap(err, "socks5client: write greeting")
	}
	reply := make([]byte, 2)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return errors.Wrap(err, "socks5client: read greeting reply")
	}
	if reply[0] != 0x05 || reply[1] != 0x02 {
		return errors.Errorf("socks5client: server did not select username/password auth (got 0x%02x)", reply[1])
	}

	req := make([]byte, 0, 3+len(username)+len(password))
	req = append(req, 0x01, byte(len(username)))
	req = append(req, username...)
	req = append(req, byte(len(password)))
	req = append(req, password...)
	if _, err := conn.Write(req); err != nil {
		return errors.Wrap(err, "socks5client: write auth")
	}

	authReply := make([]byte, 2)
	if _, err := io.ReadFull(conn, authReply); err != nil {
		return errors.Wrap(err, "socks5client: read auth reply")
	}
	if authReply[1] != 0x00 {
		return errors.New("socks5client: authentication rejected")
	}
	return nil
}

func request(conn net.Conn, host string, port uint16) error {
	ip := net.ParseIP(host)
	var body []byte
	switch {
	case ip != nil && ip.To4() != nil:
		body = append([]byte{0x05, 0x01, 0x00, 0x01}, ip.To4()...)
	case ip != nil:
		body = append([]byte{0x05, 0x01, 0x00, 0x04}, ip.To16()...)
	default:
		body = append([]byte{0x05, 0x01, 0x00, 0x03, byte(len(host))}, host...)
	}
	body = append(body, byte(port>>8), byte(port))

	if _, err := conn.Write(body); err != nil {
		return errors.Wrap(err, "socks5client: write request")
	}

	head := make([]byte, 4)
	if _, err := io.ReadFull(conn, head); err != nil {
		return errors.Wrap(err, "socks5client: read reply header")
	}
	if head[1] != 0x00 {
		return errors.Errorf("socks5client: CONNECT failed, reply code 0x%02x", head[1])
	}

	var addrLen int
	switch head[3] {
	case 0x01:
		addrLen = 4
	case 0x04:
		addrLen = 16
	case 0x03:
		lenByte := make([]byte, 1)
		if _, err := io.ReadFull(conn, lenByte); err != nil {
			return errors.Wrap(err, "socks5client: read reply domain length")
		}
		addrLen = int(lenByte[0])
	default:
		return fmt.Errorf("socks5client: unsupported reply ATYP 0x%02x", head[3])
	}

	rest := make([]byte, addrLen+2)
	if _, err := io.ReadFull(conn, rest); err != nil {
		return errors.Wrap(err, "socks5client: read reply address/port")
	}
	return nil
}
