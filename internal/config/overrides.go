// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// StoreOverride annotates a configured store with operator notes that
// never reach the worker or a client — purely a local bookkeeping aid
// (e.g. "owner" or "notes" for an on-call runbook). Parsed from an
// optional JSONC file so operators can comment entries inline.
type StoreOverride struct {
	Owner string `json:"owner,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// LoadOverrides reads a JSONC file mapping store name to StoreOverride.
// Comments (// and /* */) and trailing commas are permitted. A missing
// file is not an error — overrides are optional — and yields an empty
// map.
func LoadOverrides(path string) (map[string]StoreOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]StoreOverride{}, nil
		}
		return nil, fmt.Errorf("reading overrides file %s: %w", path, err)
	}

	stripped := jsonc.ToJSON(data)

	overrides := make(map[string]StoreOverride)
	if err := json.Unmarshal(stripped, &overrides); err != nil {
		return nil, fmt.Errorf("parsing overrides file %s: %w", path, err)
	}
	return overrides, nil
}
