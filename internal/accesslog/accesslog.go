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

// Package accesslog formats and emits the one-line-per-connection access
// log described in spec.md §6.2. The sink itself — where the formatted
// line ends up — is out of scope (spec.md §1, "logging sinks ... and
// access-log formatting" are external collaborators); this package only
// owns the formatting and hands the line to a logrus entry, the way the
// teacher's logger package hands formatted entries to logrus hooks.
package accesslog

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Outcome is the terminal status recorded for a connection: OK iff the
// connection's terminal state was DONE (§7).
type Outcome string

const (
	OK    Outcome = "OK"
	Error Outcome = "ERROR"
)

// Line is every field spec.md §6.2's wire format needs.
type Line struct {
	When         time.Time
	Username     string // "-" if no auth completed
	ClientAddr   string
	TargetHost   string // "-" if the connection failed before request parsing
	TargetPort   uint16
	Outcome      Outcome
	BytesSent    uint64
	BytesRecv    uint64
}

// Format renders l per spec.md §6.2:
//
//	[YYYY-MM-DD HH:MM:SS] ACCESS <user-or-dash>@<client-addr> -> <target-host-or-dash>:<port> <status> <bytes_sent>/<bytes_recv>
func (l Line) Format() string {
	user := l.Username
	if user == "" {
		user = "-"
	}
	host := l.TargetHost
	if host == "" {
		host = "-"
	}
	return fmt.Sprintf("[%s] ACCESS %s@%s -> %s:%d %s %d/%d",
		l.When.Format("2006-01-02 15:04:05"),
		user, l.ClientAddr,
		host, l.TargetPort,
		l.Outcome,
		l.BytesSent, l.BytesRecv,
	)
}

// Logger emits formatted Lines through a *logrus.Logger field, the same
// shape nabbar-golib/logger threads through its own components.
type Logger struct {
	log *logrus.Logger
}

// New wraps log; a nil log falls back to logrus.StandardLogger().
func New(log *logrus.Logger) *Logger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Logger{log: log}
}

// Emit writes one access-log line at Info level.
func (a *Logger) Emit(l Line) {
	a.log.WithFields(logrus.Fields{
		"user":        orDash(l.Username),
		"client":      l.ClientAddr,
		"target_host": orDash(l.TargetHost),
		"target_port": l.TargetPort,
		"outcome":     string(l.Outcome),
		"bytes_sent":  l.BytesSent,
		"bytes_recv":  l.BytesRecv,
	}).Info(l.Format())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
