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
	"fmt"
	"strings"
)

const helpText = "+OK commands: AUTH user pass | STATS | USERS | ADDUSER user pass | DELUSER user | HELP | QUIT"

// dispatch tokenizes and runs one already-framed command line and returns the
// single reply line to stage. quit reports whether the session should
// close once the reply has flushed.
func (c *Conn) dispatch(line string) (reply string, quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "-ERR empty command", false
	}

	switch strings.ToUpper(fields[0]) {
	case "STATS":
		return c.cmdStats(), false
	case "USERS":
		return c.cmdUsers(), false
	case "ADDUSER":
		return c.cmdAddUser(fields), false
	case "DELUSER":
		return c.cmdDelUser(fields), false
	case "HELP":
		return helpText, false
	case "QUIT":
		return "+OK bye", true
	default:
		return "-ERR unknown command", false
	}
}

func (c *Conn) cmdStats() string {
	s := c.engine.metrics.Snapshot()
	return fmt.Sprintf("+OK total=%d current=%d success=%d failed=%d bytes_sent=%d bytes_recv=%d",
		s.TotalConnections, s.CurrentConnections, s.SuccessfulConnections, s.FailedConnections,
		s.BytesSent, s.BytesReceived)
}

func (c *Conn) cmdUsers() string {
	var names []string
	c.engine.socksUsers.ForEach(func(username string) {
		names = append(names, username)
	})
	if len(names) == 0 {
		return "+OK (none)"
	}
	return "+OK " + strings.Join(names, " ")
}

func (c *Conn) cmdAddUser(fields []string) string {
	if len(fields) != 3 {
		return "-ERR usage: ADDUSER user pass"
	}
	if !c.engine.socksUsers.Add(fields[1], fields[2]) {
		return "-ERR add failed (invalid credentials or table full)"
	}
	return "+OK"
}

func (c *Conn) cmdDelUser(fields []string) string {
	if len(fields) != 2 {
		return "-ERR usage: DELUSER user"
	}
	if !c.engine.socksUsers.Remove(fields[1]) {
		return "-ERR no such user"
	}
	return "+OK"
}
