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

// Package socks5 is the per-connection protocol engine: §4.5 of the
// design. Eleven states, driven by internal/fsm and internal/ioselect,
// coordinating internal/resolver for FQDN lookups and internal/users for
// RFC 1929 authentication.
package socks5

import (
	"net"
	"time"

	"github.com/hashicorp/go-uuid"

	"github.com/sabouaram/socks5d/internal/accesslog"
	"github.com/sabouaram/socks5d/internal/fsm"
	"github.com/sabouaram/socks5d/internal/ioselect"
	"github.com/sabouaram/socks5d/internal/resolver"
	"github.com/sabouaram/socks5d/internal/ringbuf"
)

// Connection states, in the order tabulated by spec.md §4.5.
const (
	HelloRead fsm.State = iota
	HelloWrite
	AuthRead
	AuthWrite
	RequestRead
	RequestResolving
	RequestConnecting
	RequestWrite
	Copy
	Done
	Error
)

const bufferSize = 4096

// Conn is the connection record of §3: created on accept, mutated only
// by the event-loop goroutine except for the resolver hand-off (which
// touches only its own Slot, never Conn fields, while Conn holds no
// selector interest — §4.5.4's invariant).
type Conn struct {
	id string

	engine *Engine

	clientFD   int
	originFD   int
	clientAddr string

	machine *fsm.Machine

	// rx stages bytes read from the client; during COPY it is the C2O
	// buffer drained toward the origin. tx stages bytes to write to the
	// client; during COPY it is the O2C buffer filled from the origin.
	rx *ringbuf.Buffer
	tx *ringbuf.Buffer

	// per-state scratch (§9: a plain struct, not a tagged union — the
	// design notes explicitly allow either).
	greeting      Greeting
	username      string
	targetHost    string
	targetPort    uint16
	resolvedAddrs []net.IPAddr
	addrCursor    int
	attemptedConn bool // at least one candidate had a non-blocking connect() in flight
	requestFailed bool // REQUEST_WRITE should fall through to ERROR once flushed

	resolverSlot *resolver.Slot

	bytesToOrigin uint64 // C2O: client -> origin
	bytesToClient uint64 // O2C: origin -> client

	shutClientRead, shutClientWrite bool
	shutOriginRead, shutOriginWrite bool

	clientClosed, originClosed bool
	refCount                   int
	torn                       bool

	// failKind classifies why a connection reached ERROR, for the
	// engine's teardown debug line (§7); KindProtocol is
	// the zero value, so call sites that never classify their failure
	// still get a sensible default.
	failKind Kind

	startedAt time.Time
}

// newConn builds a Conn for a freshly accepted client fd. e owns the
// shared selector, user store, metrics, resolver pool, and access log.
func newConn(e *Engine, clientFD int, clientAddr string) *Conn {
	id, err := uuid.GenerateUUID()
	if err != nil {
		id = clientAddr // never fatal: worst case the hand-off key degrades to the address
	}

	c := &Conn{
		id:         id,
		engine:     e,
		clientFD:   clientFD,
		originFD:   -1,
		clientAddr: clientAddr,
		rx:         ringbuf.New(bufferSize),
		tx:         ringbuf.New(bufferSize),
		startedAt:  time.Now(),
	}
	c.machine = fsm.New(HelloRead, c.stateDefs())
	return c
}

// key builds the fsm.Key callbacks receive for fd, tagging it with this
// Conn as user data.
func (c *Conn) key(fd int) *fsm.Key {
	return &fsm.Key{Selector: c.engine.selector, FD: fd, UserData: c}
}

// outcome reports whether the connection's terminal state was DONE, for
// the access log and metrics (§7: "OK iff the terminal state was DONE").
func (c *Conn) outcome() accesslog.Outcome {
	if c.machine.Current() == Done {
		return accesslog.OK
	}
	return accesslog.Error
}

// fail transitions to ERROR, optionally classifying why via kind (the
// zero value, KindProtocol, applies if the caller omits it). Most state
// callbacks call this instead of returning Error directly so the call
// site reads like the state table.
func (c *Conn) fail(kind ...Kind) fsm.State {
	if len(kind) > 0 {
		c.failKind = kind[0]
	}
	return Error
}

// armClient sets the selector interest for the client fd given the
// current scratch/buffer state; used by every state that both reads and
// writes the client (HELLO/AUTH/REQUEST phases use one direction at a
// time, so this is mostly called with an explicit mask by the states
// themselves — see copy.go for the COPY phase's back-pressure variant).
func (c *Conn) armClient(mask ioselect.Mask) {
	_ = c.engine.selector.SetInterest(c.clientFD, mask)
}

func (c *Conn) armOrigin(mask ioselect.Mask) {
	if c.originFD >= 0 {
		_ = c.engine.selector.SetInterest(c.originFD, mask)
	}
}
