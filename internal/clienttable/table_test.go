package clienttable

import (
	"testing"

	"github.com/wasmbed/wasmbed/internal/protocol"
)

// S... (§8.4): two peers with distinct identities must never collide in the
// table, and registering a second identity must not disturb the first.
func TestTableIdentityUniqueness(t *testing.T) {
	table := New()

	idA := protocol.PeerIdentity([]byte{1, 2, 3})
	idB := protocol.PeerIdentity([]byte{4, 5, 6})

	senderA := NewOutbound()
	senderB := NewOutbound()

	table.Register(idA, senderA)
	table.Register(idB, senderB)

	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}

	gotA, ok := table.Get(idA)
	if !ok || gotA != senderA {
		t.Fatalf("Get(idA) = (%v, %v), want (%v, true)", gotA, ok, senderA)
	}
	gotB, ok := table.Get(idB)
	if !ok || gotB != senderB {
		t.Fatalf("Get(idB) = (%v, %v), want (%v, true)", gotB, ok, senderB)
	}
}

func TestTableRegisterOverwritesSameIdentity(t *testing.T) {
	table := New()
	id := protocol.PeerIdentity([]byte{9, 9, 9})

	first := NewOutbound()
	second := NewOutbound()

	table.Register(id, first)
	table.Register(id, second)

	if table.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", table.Len())
	}
	got, ok := table.Get(id)
	if !ok || got != second {
		t.Fatalf("Get(id) = (%v, %v), want (%v, true)", got, ok, second)
	}
}

func TestTableUnregisterIsIdempotent(t *testing.T) {
	table := New()
	id := protocol.PeerIdentity([]byte{1})

	table.Unregister(id) // must not panic when absent

	table.Register(id, NewOutbound())
	table.Unregister(id)
	table.Unregister(id)

	if _, ok := table.Get(id); ok {
		t.Fatalf("Get(id) ok after Unregister, want not found")
	}
	if table.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", table.Len())
	}
}

func TestTableGetMissing(t *testing.T) {
	table := New()
	_, ok := table.Get(protocol.PeerIdentity([]byte{1, 2}))
	if ok {
		t.Fatalf("Get on empty table returned ok = true")
	}
}
