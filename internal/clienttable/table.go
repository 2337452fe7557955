// Package clienttable is the process-wide source of truth for "who is
// currently connected": a map from PeerIdentity to the Outbound sender that
// feeds that peer's session writer.
package clienttable

import (
	"sync"

	"github.com/wasmbed/wasmbed/internal/protocol"
)

// Table is safe for concurrent use by many readers and occasional writers.
// Reads never block each other; a write takes an exclusive lock only for
// the duration of the map mutation itself. Callers must never invoke a
// callback while holding a reference obtained under the lock in a way that
// re-enters the table -- Get returns a plain pointer precisely so callers
// can release the lock before doing anything with it.
type Table struct {
	mu      sync.RWMutex
	entries map[string]*Outbound
}

// New returns an empty Table.
func New() *Table {
	return &Table{entries: make(map[string]*Outbound)}
}

// Register inserts sender under identity, overwriting any prior entry. In
// practice a prior entry should not exist: the session core unregisters
// before a replacement session is ever authorized for the same identity.
func (t *Table) Register(identity protocol.PeerIdentity, sender *Outbound) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[identity.Key()] = sender
}

// Unregister removes the entry for identity if present. It is a no-op
// otherwise, so callers can always call it unconditionally during teardown.
func (t *Table) Unregister(identity protocol.PeerIdentity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, identity.Key())
}

// Get returns the Outbound sender registered for identity, if any.
func (t *Table) Get(identity protocol.PeerIdentity) (*Outbound, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sender, ok := t.entries[identity.Key()]
	return sender, ok
}

// Len reports the number of currently registered identities. Intended for
// diagnostics and tests, not for decisions with concurrency implications.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
