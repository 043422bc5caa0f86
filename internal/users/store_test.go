package users_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sabouaram/socks5d/internal/users"
)

func TestRoundTrip(t *testing.T) {
	s := users.New()

	if !s.Add("alice", "hunter2") {
		t.Fatalf("Add() = false, want true")
	}
	if !s.Verify("alice", "hunter2") {
		t.Fatalf("Verify(alice, hunter2) = false, want true")
	}

	if !s.Remove("alice") {
		t.Fatalf("Remove() = false, want true")
	}
	if s.Verify("alice", "hunter2") {
		t.Fatalf("Verify after Remove = true, want false")
	}
}

func TestAddUpdatesExistingPassword(t *testing.T) {
	s := users.New()
	s.Add("bob", "first")
	s.Add("bob", "second")

	if !s.Verify("bob", "second") {
		t.Fatalf("Verify(bob, second) = false, want true")
	}
	if s.Verify("bob", "first") {
		t.Fatalf("Verify(bob, first) = true, want false (password should have been replaced)")
	}
	if s.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 (update must not occupy a new slot)", s.Count())
	}
}

func TestRejectsEmptyAndOversizeCredentials(t *testing.T) {
	s := users.New()

	if s.Add("", "pw") {
		t.Fatalf("Add() with empty username should fail")
	}
	if s.Add("name", "") {
		t.Fatalf("Add() with empty password should fail")
	}
	if s.Add(strings.Repeat("a", 256), "pw") {
		t.Fatalf("Add() with 256-byte username should fail")
	}
}

func TestTableFullRejectsAdd(t *testing.T) {
	s := users.New()
	for i := 0; i < users.MaxEntries; i++ {
		if !s.Add(fmt.Sprintf("user-%03d", i), "pw") {
			t.Fatalf("Add() #%d unexpectedly failed before table full", i)
		}
	}
	if s.Count() != users.MaxEntries {
		t.Fatalf("Count() = %d, want %d", s.Count(), users.MaxEntries)
	}
	if s.Add("one-too-many", "pw") {
		t.Fatalf("Add() on a full table should fail")
	}
}

func TestExistsAndForEach(t *testing.T) {
	s := users.New()
	s.Add("carol", "pw1")
	s.Add("dave", "pw2")

	if !s.Exists("carol") || !s.Exists("dave") {
		t.Fatalf("Exists() should report both seeded users")
	}
	if s.Exists("erin") {
		t.Fatalf("Exists(erin) = true, want false")
	}

	seen := map[string]bool{}
	s.ForEach(func(username string) { seen[username] = true })
	if !seen["carol"] || !seen["dave"] {
		t.Fatalf("ForEach() missed a user, saw %v", seen)
	}
}
