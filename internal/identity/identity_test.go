package identity

import (
	"strings"
	"testing"
)

func TestNew_Prefix(t *testing.T) {
	id := New("msg")
	if !strings.HasPrefix(id, "msg_") {
		t.Fatalf("expected prefix %q, got %q", "msg_", id)
	}
	if len(id) <= len("msg_") {
		t.Fatalf("id has no body: %q", id)
	}
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		id := New("msg")
		if seen[id] {
			t.Fatalf("duplicate id after %d iterations: %q", i, id)
		}
		seen[id] = true
	}
}

func TestNew_DistinctPrefixesDistinctIDs(t *testing.T) {
	a := New("msg")
	b := New("log")
	if a == b {
		t.Fatalf("ids with different prefixes collided: %q", a)
	}
}
