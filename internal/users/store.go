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

// Package users is the process-wide credential table consulted by the
// RFC 1929 subnegotiation state and mutated by the management plane's
// ADDUSER/DELUSER commands. It is the one piece of shared mutable state
// besides the metrics counters (§5).
package users

import (
	"crypto/subtle"
	"sync"
)

// MaxUsername and MaxPassword are the RFC 1929 subnegotiation field
// limits: a one-byte length prefix, so 1-255 bytes.
const (
	MaxUsername = 255
	MaxPassword = 255
	// MaxEntries mirrors the reference's fixed-capacity table
	// (original_source/include/users.h: MAX_TOTAL_USERS).
	MaxEntries = 100
)

type entry struct {
	username string
	password string
	active   bool
}

// Store is a fixed-capacity table of (username, password) pairs behind a
// mutex. The zero value is ready to use.
type Store struct {
	mu      sync.Mutex
	entries [MaxEntries]entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

func validLen(s string) bool {
	return len(s) >= 1 && len(s) <= MaxUsername
}

// Add inserts a new user or, if username already has an active entry,
// updates its password in place. It returns false only when username or
// password is empty/too long, or the table has no free slot.
func (s *Store) Add(username, password string) bool {
	if !validLen(username) || !validLen(password) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	free := -1
	for i := range s.entries {
		e := &s.entries[i]
		if e.active && e.username == username {
			e.password = password
			return true
		}
		if !e.active && free == -1 {
			free = i
		}
	}
	if free == -1 {
		return false
	}
	s.entries[free] = entry{username: username, password: password, active: true}
	return true
}

// Remove deactivates username's entry, zeroing its password first
// (defensive, per §4.4). It returns false if no active entry exists.
func (s *Store) Remove(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		e := &s.entries[i]
		if e.active && e.username == username {
			e.password = ""
			*e = entry{}
			return true
		}
	}
	return false
}

// Verify reports whether (username, password) names an active entry.
// The comparison is constant-time in the password length that matters
// (the matched entry's), closing the timing side-channel the design
// notes (§9) call out as not implemented in the reference.
func (s *Store) Verify(username, password string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		e := &s.entries[i]
		if e.active && e.username == username {
			return subtle.ConstantTimeCompare([]byte(e.password), []byte(password)) == 1
		}
	}
	return false
}

// Exists reports whether username has an active entry.
func (s *Store) Exists(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].active && s.entries[i].username == username {
			return true
		}
	}
	return false
}

// Count returns the number of active entries.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.entries {
		if s.entries[i].active {
			n++
		}
	}
	return n
}

// ForEach invokes fn once per active username with the lock held — fn
// must not call back into the Store.
func (s *Store) ForEach(fn func(username string)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].active {
			fn(s.entries[i].username)
		}
	}
}
