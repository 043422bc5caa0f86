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
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/sabouaram/socks5d/internal/accesslog"
	"github.com/sabouaram/socks5d/internal/fsm"
	"github.com/sabouaram/socks5d/internal/ioselect"
	"github.com/sabouaram/socks5d/internal/metrics"
	"github.com/sabouaram/socks5d/internal/resolver"
	"github.com/sabouaram/socks5d/internal/users"
)

// MaxConnections bounds the number of simultaneous connections the
// engine will accept, mirroring the fixed-size connection table of
// original_source/include/server.h (§5).
const MaxConnections = 50

// EngineConfig gathers the engine's external dependencies; cmd/socks5d
// builds one of these from internal/config's Config and seed user list.
type EngineConfig struct {
	ListenAddr          string
	ResolverConcurrency int64
	Users               *users.Store
	Metrics             *metrics.Registry
	AccessLog           *accesslog.Logger
	Logger              *logrus.Logger
}

// Engine owns the listening socket, the readiness selector, and every
// live Conn's shared dependencies. One Engine per SOCKS5 listener.
type Engine struct {
	cfg EngineConfig

	selector *ioselect.Selector
	users    *users.Store
	metrics  *metrics.Registry
	resolver *resolver.Pool
	accessLog *accesslog.Logger
	log      *logrus.Logger

	listenFD int
	ctx      context.Context // set by Run; used for resolver lookups

	mu          sync.Mutex
	activeCount int
}

// NewEngine binds the listening socket and wires the selector, but does
// not start accepting connections until Run is called.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Users == nil {
		cfg.Users = users.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.AccessLog == nil {
		cfg.AccessLog = accesslog.New(cfg.Logger)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.ResolverConcurrency <= 0 {
		cfg.ResolverConcurrency = 16
	}

	sel, err := ioselect.New(ioselect.DefaultConfig(), MaxConnections+1)
	if err != nil {
		return nil, errors.Wrap(err, "socks5: creating selector")
	}

	e := &Engine{
		cfg:       cfg,
		selector:  sel,
		users:     cfg.Users,
		metrics:   cfg.Metrics,
		resolver:  resolver.NewPool(cfg.ResolverConcurrency, nil),
		accessLog: cfg.AccessLog,
		log:       cfg.Logger,
		listenFD:  -1,
	}

	fd, err := listenTCP(cfg.ListenAddr)
	if err != nil {
		_ = sel.Close()
		return nil, errors.Wrapf(err, "socks5: listening on %s", cfg.ListenAddr)
	}
	e.listenFD = fd

	if err := sel.Register(fd, ioselect.Handlers{OnRead: e.onAcceptable}, ioselect.Read, e); err != nil {
		_ = unix.Close(fd)
		_ = sel.Close()
		return nil, errors.Wrap(err, "socks5: registering listener")
	}

	return e, nil
}

// listenTCP builds a non-blocking, listening TCP socket bound to addr,
// matching the raw-fd style the rest of the engine uses so the listener
// can be armed on the same epoll instance as every connection.
func listenTCP(addr string) (int, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, err
	}

	domain := unix.AF_INET
	ip := tcpAddr.IP.To4()
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

// Run drives the event loop until ctx is cancelled. ctx is also handed
// to every resolver lookup started while the engine is running.
func (e *Engine) Run(ctx context.Context) error {
	e.ctx = ctx
	for ctx.Err() == nil {
		if err := e.selector.Select(ctx); err != nil {
			if stderrors.Is(err, context.Canceled) {
				return nil
			}
			return errors.Wrap(err, "socks5: selector error")
		}
	}
	return ctx.Err()
}

// Selector returns the engine's readiness multiplexer so a second
// listener (the management plane) can share the same epoll instance.
func (e *Engine) Selector() *ioselect.Selector { return e.selector }

// Users returns the engine's SOCKS credential store, for the
// management plane's USERS/ADDUSER/DELUSER commands.
func (e *Engine) Users() *users.Store { return e.users }

// Metrics returns the engine's metrics registry, for the management
// plane's STATS command.
func (e *Engine) Metrics() *metrics.Registry { return e.metrics }

// Close releases the listening socket and the selector. Live
// connections are not forcibly torn down; callers that want a clean
// drain should stop accepting and wait for COPY phases to finish on
// their own.
func (e *Engine) Close() error {
	var closeErr error
	if e.listenFD >= 0 {
		_ = e.selector.Unregister(e.listenFD)
		if err := unix.Close(e.listenFD); err != nil {
			closeErr = err
		}
	}
	if err := e.selector.Close(); err != nil {
		if closeErr == nil {
			closeErr = err
		}
	}
	// Run's ctx is already cancelled by the time Close is called, so
	// every outstanding resolver worker is on its way to posting a
	// result and returning; wait for that instead of leaking goroutines
	// past the engine's own lifetime.
	if err := e.resolver.Wait(); err != nil {
		if closeErr == nil {
			closeErr = err
		}
	}
	return closeErr
}

// onAcceptable drains the listener's accept backlog, each call handling
// every currently-pending connection until accept4 reports EAGAIN.
func (e *Engine) onAcceptable(k *fsm.Key) {
	for {
		fd, sa, err := unix.Accept4(e.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if !stderrors.Is(err, unix.EAGAIN) {
				e.log.WithError(err).Warn("socks5: accept failed")
			}
			return
		}
		e.acceptOne(fd, sa)
	}
}

func (e *Engine) acceptOne(fd int, sa unix.Sockaddr) {
	e.mu.Lock()
	if e.activeCount >= MaxConnections {
		e.mu.Unlock()
		e.log.WithField("kind", KindResource.String()).Warn("socks5: connection table full, rejecting")
		_ = unix.Close(fd)
		return
	}
	e.activeCount++
	e.mu.Unlock()

	c := newConn(e, fd, sockaddrString(sa))

	if err := e.selector.Register(fd, ioselect.Handlers{
		OnRead:  e.dispatchRead,
		OnWrite: e.dispatchWrite,
		OnClose: e.dispatchClose,
		OnBlock: e.dispatchBlock,
	}, ioselect.Read, c); err != nil {
		e.mu.Lock()
		e.activeCount--
		e.mu.Unlock()
		_ = unix.Close(fd)
		return
	}

	e.metrics.ConnectionOpened()
	c.machine.Enter(c.key(fd))
}

// release is called once from Conn.teardown.
func (e *Engine) release(c *Conn) {
	e.mu.Lock()
	e.activeCount--
	e.mu.Unlock()
}

func (e *Engine) dispatchRead(k *fsm.Key) {
	k.UserData.(*Conn).machine.HandleRead(k)
}

func (e *Engine) dispatchWrite(k *fsm.Key) {
	k.UserData.(*Conn).machine.HandleWrite(k)
}

func (e *Engine) dispatchBlock(k *fsm.Key) {
	k.UserData.(*Conn).machine.HandleBlock(k)
}

// dispatchClose fires on EPOLLERR/EPOLLHUP for either leg of a
// connection; teardown is safe to invoke directly since it is
// idempotent and outcome() reads whatever state the machine is
// currently in rather than requiring an explicit ERROR transition.
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
