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

// Package resolver runs FQDN name resolution off the event-loop thread
// (§3 "Resolver job", §4.5.4). A Pool bounds how many resolutions run
// concurrently with a weighted semaphore and hands each result back
// through a per-connection Slot rather than writing into the connection
// record directly — the safer hand-off §9's design notes recommend,
// keyed by connection id instead of a raw pointer so a torn-down
// connection can never be written into after it is freed.
package resolver

import (
	"context"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Result is what a resolution job produces: either a list of addresses
// or an error. Addrs preserves net.Resolver's ordering, which already
// interleaves address families the way happy-eyeballs expects.
type Result struct {
	Addrs []net.IPAddr
	Err   error
}

// Slot is the hand-off point between a worker goroutine and the event
// loop for exactly one outstanding resolution. The worker writes Result
// once via Complete; the event loop reads it via TryTake after its
// selector wakes on the associated fd. A Slot is safe to read after
// Complete has happened-before the wakeup that triggers the read (the
// resolver.Pool enforces that ordering via a buffered channel).
type Slot struct {
	id     string
	result chan Result
}

func newSlot(id string) *Slot {
	return &Slot{id: id, result: make(chan Result, 1)}
}

// ID returns the connection id this slot was keyed by.
func (s *Slot) ID() string { return s.id }

// TryTake returns the posted Result and true if the worker has already
// completed, or the zero Result and false otherwise. It never blocks.
func (s *Slot) TryTake() (Result, bool) {
	select {
	case r := <-s.result:
		return r, true
	default:
		return Result{}, false
	}
}

// Pool bounds concurrent resolutions and notifies the caller-supplied
// wakeup function when a job completes. g supervises every worker
// goroutine Resolve spawns, so Wait can report that the pool has fully
// drained instead of the caller having to guess from the outside.
type Pool struct {
	sem      *semaphore.Weighted
	resolver *net.Resolver
	g        errgroup.Group

	mu    sync.Mutex
	slots map[string]*Slot
}

// NewPool builds a Pool allowing up to maxConcurrent resolutions at
// once. A nil *net.Resolver defaults to net.DefaultResolver.
func NewPool(maxConcurrent int64, r *net.Resolver) *Pool {
	if r == nil {
		r = net.DefaultResolver
	}
	return &Pool{
		sem:      semaphore.NewWeighted(maxConcurrent),
		resolver: r,
		slots:    make(map[string]*Slot),
	}
}

// Resolve spawns a worker goroutine resolving host, registers a Slot
// under connID, and calls onDone (expected to be ioselect.Selector's
// NotifyBlock bound to the connection's client fd) once the result has
// been posted. The pool's semaphore is acquired inside the spawned
// goroutine, so Resolve never blocks its caller: a saturated pool caps
// the number of lookups in flight, while further workers wait on the
// semaphore.
func (p *Pool) Resolve(ctx context.Context, connID, host string, onDone func()) *Slot {
	slot := newSlot(connID)

	p.mu.Lock()
	p.slots[connID] = slot
	p.mu.Unlock()

	p.g.Go(func() error {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			slot.result <- Result{Err: err}
			onDone()
			return nil
		}
		defer p.sem.Release(1)

		addrs, err := p.resolver.LookupIPAddr(ctx, host)
		slot.result <- Result{Addrs: addrs, Err: err}
		onDone()
		// A failed lookup is reported through the Slot, not here: one
		// bad resolution must not trip up Wait for every other worker.
		return nil
	})

	return slot
}

// Wait blocks until every worker Resolve has spawned has returned. The
// engine calls this during shutdown so a Close doesn't race a resolver
// goroutine still writing into a Slot nobody will ever read again.
func (p *Pool) Wait() error {
	return p.g.Wait()
}

// Forget drops the bookkeeping entry for connID. Call this once the
// connection has consumed its Slot's result (or the connection was torn
// down before the worker finished — the worker still holds its own
// reference via the closure, so dropping the map entry here cannot
// cause a use-after-free: nothing reads via the map after teardown,
// only the Slot channel itself, which outlives the map entry).
func (p *Pool) Forget(connID string) {
	p.mu.Lock()
	delete(p.slots, connID)
	p.mu.Unlock()
}
