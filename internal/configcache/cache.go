// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

// Package configcache implements the Configuration Cache: the
// store-name → configuration-block map written once per worker
// startup or restart by the Worker Supervisor and read by the Request
// Server to answer ID and CONFIG requests without disturbing the
// worker.
package configcache

import (
	"encoding/json"
	"sync"
)

// Block is a worker's configuration block, treated opaquely except
// for the top-level ID field the Request Server needs to answer an ID
// request.
type Block struct {
	// ID is the eight-hex-digit cache identifier (sometimes called the
	// hash) the worker's CONFIG response carries.
	ID string

	// Raw is the full configuration block as returned by the worker,
	// forwarded verbatim in a CONFIG response.
	Raw json.RawMessage
}

// Cache holds the most recently fetched configuration block per
// store. Mutated only by the Worker Supervisor at startup and after
// each restart; read by the Request Server. A plain RWMutex suffices
// since writes are rare (process lifetime / restart cadence) and
// reads are frequent (every ID/CONFIG request).
type Cache struct {
	mu     sync.RWMutex
	blocks map[string]Block
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{blocks: make(map[string]Block)}
}

// Set replaces the configuration block for store, atomically — the
// previous block (if any) is discarded in full, matching spec's "a
// per-store versioned write pattern is not required because the block
// is replaced atomically on restart."
func (c *Cache) Set(store string, block Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[store] = block
}

// Get returns the configuration block for store, if one has been
// fetched.
func (c *Cache) Get(store string) (Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	block, ok := c.blocks[store]
	return block, ok
}

// Entry pairs a store name with its cache id, the shape the Request
// Server returns for an unfiltered ID request.
type Entry struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// All returns one Entry per store currently holding a configuration
// block, in no particular order.
func (c *Cache) All() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries := make([]Entry, 0, len(c.blocks))
	for name, block := range c.blocks {
		entries = append(entries, Entry{Name: name, ID: block.ID})
	}
	return entries
}
