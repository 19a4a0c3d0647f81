// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"fmt"
)

// ParseBundle decodes a bundle broadcast's JSON payload (an array of
// PUB descriptors sharing one transaction id) and verifies the
// coherence invariant: every element carries the same id.
//
// potproxy never needs to act on bundle contents — C4 forwards the
// whole frame byte-exact — but this parser exists for tests that
// verify bundle coherence (spec.md §8 invariant 5) and for any future
// caller that needs to inspect bundle members.
func ParseBundle(jsonBody []byte) ([]Response, error) {
	var entries []Response
	if err := json.Unmarshal(jsonBody, &entries); err != nil {
		return nil, fmt.Errorf("%w: bundle payload: %v", ErrBadFrame, err)
	}
	if len(entries) == 0 {
		return entries, nil
	}
	id := entries[0].ID
	for i, entry := range entries {
		if entry.ID != id {
			return nil, fmt.Errorf("%w: bundle entry %d has id %q, expected %q", ErrBadFrame, i, entry.ID, id)
		}
	}
	return entries, nil
}
