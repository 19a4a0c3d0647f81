// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package idalloc

import "sync"

// Allocator yields a monotonic counter over the full 32-bit id space,
// wrapping back to zero after the maximum value. One Allocator belongs
// to exactly one Request Relay; different stores never share an
// Allocator, so their id spaces are independent.
type Allocator struct {
	mu   sync.Mutex
	next uint32
}

// New creates an Allocator starting at id 0.
func New() *Allocator {
	return &Allocator{}
}

// Next returns the next id in sequence and advances the counter,
// wrapping to 0 after 0xffffffff.
func (a *Allocator) Next() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	return id
}
