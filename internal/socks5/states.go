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

import "github.com/sabouaram/socks5d/internal/fsm"

// stateDefs builds the eleven-entry table driving c.machine, tabulated
// in the order of §4.5: the two handshake phases, the request phase's
// three-way fork (read/resolving/connecting), the reply write, the
// copy relay, and the two terminal states.
func (c *Conn) stateDefs() []fsm.Definition {
	return []fsm.Definition{
		{
			State:       int(HelloRead),
			OnArrival:   c.onHelloArrival,
			OnReadReady: c.onHelloRead,
		},
		{
			State:        int(HelloWrite),
			OnArrival:    c.onHelloWriteArrival,
			OnWriteReady: c.onHelloWrite,
		},
		{
			State:       int(AuthRead),
			OnArrival:   c.onAuthArrival,
			OnReadReady: c.onAuthRead,
		},
		{
			State:        int(AuthWrite),
			OnArrival:    c.onAuthWriteArrival,
			OnWriteReady: c.onAuthWrite,
		},
		{
			State:       int(RequestRead),
			OnArrival:   c.onRequestArrival,
			OnReadReady: c.onRequestRead,
		},
		{
			State:        int(RequestResolving),
			OnArrival:    c.onResolvingArrival,
			OnBlockReady: c.onResolvingBlock,
		},
		{
			State:        int(RequestConnecting),
			OnArrival:    c.onConnectingArrival,
			OnWriteReady: c.onConnectingWrite,
			OnBlockReady: c.onConnectingBlock,
		},
		{
			State:        int(RequestWrite),
			OnArrival:    c.onRequestWriteArrival,
			OnWriteReady: c.onRequestWrite,
		},
		{
			State:        int(Copy),
			OnArrival:    c.onCopyArrival,
			OnReadReady:  c.onCopyRead,
			OnWriteReady: c.onCopyWrite,
		},
		{
			State:     int(Done),
			OnArrival: c.onTerminalArrival,
		},
		{
			State:     int(Error),
			OnArrival: c.onTerminalArrival,
		},
	}
}

// onTerminalArrival runs for both DONE and ERROR: teardown is the same
// regardless of which terminal state was reached, only the access-log
// outcome and metrics counter differ (§7).
func (c *Conn) onTerminalArrival(prev fsm.State, k *fsm.Key) {
	c.teardown()
}
