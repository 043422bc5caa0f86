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
	"golang.org/x/sys/unix"

	"github.com/sabouaram/socks5d/internal/accesslog"
)

// teardown is idempotent (§4.5.8): both fds are unregistered and
// closed, the access log line is emitted, metrics are updated, and the
// Conn's slot in the engine's active-connection count is released. Safe to call from either
// terminal state's arrival callback, and safe to call twice.
func (c *Conn) teardown() {
	if c.torn {
		return
	}
	c.torn = true

	if c.resolverSlot != nil {
		c.engine.resolver.Forget(c.id)
	}

	_ = c.engine.selector.Unregister(c.clientFD)
	_ = unix.Close(c.clientFD)
	if c.originFD >= 0 {
		_ = c.engine.selector.Unregister(c.originFD)
		_ = unix.Close(c.originFD)
	}

	outcome := c.outcome()
	c.engine.metrics.ConnectionClosed()
	if outcome == accesslog.OK {
		c.engine.metrics.ConnectionSucceeded()
	} else {
		c.engine.metrics.ConnectionFailed()
		c.engine.log.WithField("kind", c.failKind.String()).
			WithField("target", c.targetHost).
			Debug("socks5: connection failed")
	}

	c.engine.accessLog.Emit(accesslog.Line{
		When:       c.startedAt,
		Username:   c.username,
		ClientAddr: c.clientAddr,
		TargetHost: c.targetHost,
		TargetPort: c.targetPort,
		Outcome:    outcome,
		BytesSent:  c.bytesToClient,
		BytesRecv:  c.bytesToOrigin,
	})

	c.engine.release(c)
}
