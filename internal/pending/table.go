// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package pending

import (
	"sync"

	"github.com/potproxy/potproxy/internal/socketx"
	"github.com/potproxy/potproxy/internal/wire"
)

// EntryKind distinguishes a transaction that originated from an
// external client from one the relay issued on its own behalf (a
// CONFIG fetch at worker startup).
type EntryKind int

const (
	External EntryKind = iota
	Internal
)

// Entry is one Pending Table record. For External entries, Route and
// OriginalID address the response back to the client that issued the
// request. For Internal entries, Completion is a single-shot channel
// the relay's internal caller blocks on; it receives the terminal
// response and is never sent to twice.
type Entry struct {
	InternalID uint32
	Kind       EntryKind

	Route      *socketx.Route
	OriginalID string

	Completion chan *wire.Response
}

// Table is the concurrency-safe internal-id → Entry map belonging to
// one Request Relay.
type Table struct {
	mu      sync.Mutex
	entries map[uint32]*Entry
}

// New creates an empty Table.
func New() *Table {
	return &Table{entries: make(map[uint32]*Entry)}
}

// Insert adds entry under entry.InternalID. Returns false without
// modifying the table if an entry already occupies that id — the
// caller (the Request Relay, driving an idalloc.Allocator) should
// allocate the next id and retry. This is the wrap-and-probe scheme
// called for by spec's id-allocator open question: a clean linear
// probe against table occupancy rather than any guard-branch port.
func (t *Table) Insert(entry *Entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[entry.InternalID]; exists {
		return false
	}
	t.entries[entry.InternalID] = entry
	return true
}

// Lookup returns the entry for id without removing it. The terminal
// response rule (REP+B's descriptor must not remove the entry until
// the following bulk frame is also forwarded) requires that lookup and
// removal be distinct operations.
func (t *Table) Lookup(id uint32) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[id]
	return entry, ok
}

// Remove deletes the entry for id, if present.
func (t *Table) Remove(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Len reports the number of pending entries. Used by tests to verify
// the table drains to empty after a stream of transactions completes.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
