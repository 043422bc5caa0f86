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
	stderrors "errors"
	"fmt"
	"net"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/sabouaram/socks5d/internal/fsm"
	"github.com/sabouaram/socks5d/internal/ioselect"
	"github.com/sabouaram/socks5d/internal/metrics"
	"github.com/sabouaram/socks5d/internal/users"
)

// MaxSessions bounds simultaneous administration connections; the
// management plane is a narrow operational surface, not a public one.
const MaxSessions = 8

// EngineConfig gathers the administration listener's dependencies. It
// shares the SOCKS engine's selector, user store, and metrics so the
// two listeners run on one epoll instance and one set of mutable state.
type EngineConfig struct {
	ListenAddr string
	Selector   *ioselect.Selector
	Admins     *users.Store
	SocksUsers *users.Store
	Metrics    *metrics.Registry
	Logger     *logrus.Logger
}

// Engine owns the administration listening socket.
type Engine struct {
	selector   *ioselect.Selector
	admins     *users.Store
	socksUsers *users.Store
	metrics    *metrics.Registry
	log        *logrus.Logger

	listenFD int

	sessions int
}

// NewEngine binds the administration listener onto cfg.Selector,
// registering it alongside whatever else already shares that selector
// (the SOCKS listener, in the normal wiring done by cmd/socks5d).
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Admins == nil || cfg.SocksUsers == nil || cfg.Metrics == nil || cfg.Selector == nil {
		return nil, errors.New("mgmt: NewEngine requires Selector, Admins, SocksUsers and Metrics")
	}

	e := &Engine{
		selector:   cfg.Selector,
		admins:     cfg.Admins,
		socksUsers: cfg.SocksUsers,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
		listenFD:   -1,
	}

	fd, err := listenTCP(cfg.ListenAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "mgmt: listening on %s", cfg.ListenAddr)
	}
	e.listenFD = fd

	if err := cfg.Selector.Register(fd, ioselect.Handlers{OnRead: e.onAcceptable}, ioselect.Read, e); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(err, "mgmt: registering listener")
	}
	return e, nil
}

func (e *Engine) Close() error {
	if e.listenFD < 0 {
		return nil
	}
	_ = e.selector.Unregister(e.listenFD)
	return unix.Close(e.listenFD)
}

func listenTCP(addr string) (int, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, err
	}
	ip := tcpAddr.IP.To4()
	domain := unix.AF_INET
	if ip == nil {
		domain = unix.AF_INET6
		ip = tcpAddr.IP.To16()
	}
	if ip == nil {
		ip = net.IPv4zero.To4()
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	var sa unix.Sockaddr
	if domain == unix.AF_INET {
		var a [4]byte
		copy(a[:], ip)
		sa = &unix.SockaddrInet4{Port: tcpAddr.Port, Addr: a}
	} else {
		var a [16]byte
		copy(a[:], ip)
		sa = &unix.SockaddrInet6{Port: tcpAddr.Port, Addr: a}
	}

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := ioselect.FDSetNonBlock(fd); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func (e *Engine) onAcceptable(k *fsm.Key) {
	for {
		fd, sa, err := unix.Accept4(e.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if !stderrors.Is(err, unix.EAGAIN) {
				e.log.WithError(err).Warn("mgmt: accept failed")
			}
			return
		}
		e.acceptOne(fd, sa)
	}
}

func (e *Engine) acceptOne(fd int, sa unix.Sockaddr) {
	if e.sessions >= MaxSessions {
		_ = unix.Close(fd)
		return
	}
	e.sessions++

	c := newConn(e, fd, sockaddrString(sa))
	if err := e.selector.Register(fd, ioselect.Handlers{
		OnRead:  e.dispatchRead,
		OnWrite: e.dispatchWrite,
		OnClose: e.dispatchClose,
	}, ioselect.Read, c); err != nil {
		e.sessions--
		_ = unix.Close(fd)
		return
	}
	c.machine.Enter(c.key())
}

func (e *Engine) release() {
	e.sessions--
}

func (e *Engine) dispatchRead(k *fsm.Key)  { k.UserData.(*Conn).machine.HandleRead(k) }
func (e *Engine) dispatchWrite(k *fsm.Key) { k.UserData.(*Conn).machine.HandleWrite(k) }
func (e *Engine) dispatchClose(k *fsm.Key) {
	if c, ok := k.UserData.(*Conn); ok {
		c.teardown()
	}
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%s:%d", net.IP(a.Addr[:]).String(), a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%s]:%d", net.IP(a.Addr[:]).String(), a.Port)
	default:
		return "unknown"
	}
}
