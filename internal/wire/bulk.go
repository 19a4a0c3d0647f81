// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"fmt"
	"strings"
)

// BulkSuffix marks the second frame of a two-frame (descriptor, bulk)
// transaction. BundleSuffix marks a bundle broadcast.
const (
	BulkSuffix   = ";bulk"
	BundleSuffix = ";bundle"
)

// BuildBulkFrame constructs the second frame of a REP+B or PUB+B
// transaction: "<name>;bulk <id-hex> <raw bytes>". payload may contain
// any byte, including spaces and newlines — it is the second space
// that separates id from payload, not any space within payload.
func BuildBulkFrame(name, id string, payload []byte) []byte {
	header := fmt.Sprintf("%s%s %s ", name, BulkSuffix, id)
	out := make([]byte, 0, len(header)+len(payload))
	out = append(out, header...)
	out = append(out, payload...)
	return out
}

// ParseBulkFrame splits a bulk second frame into its base element
// name, transaction id, and raw payload. The base name has the
// ";bulk" suffix removed.
func ParseBulkFrame(raw []byte) (name, id string, payload []byte, err error) {
	firstSpace := bytes.IndexByte(raw, ' ')
	if firstSpace < 0 {
		return "", "", nil, fmt.Errorf("%w: bulk frame missing id field", ErrBadFrame)
	}
	topic := string(raw[:firstSpace])
	rest := raw[firstSpace+1:]

	secondSpace := bytes.IndexByte(rest, ' ')
	if secondSpace < 0 {
		return "", "", nil, fmt.Errorf("%w: bulk frame missing payload separator", ErrBadFrame)
	}
	idField := string(rest[:secondSpace])
	payload = rest[secondSpace+1:]

	name, ok := strings.CutSuffix(topic, BulkSuffix)
	if !ok {
		return "", "", nil, fmt.Errorf("%w: bulk frame topic %q missing %q suffix", ErrBadFrame, topic, BulkSuffix)
	}
	if _, err := ParseID(idField); err != nil {
		return "", "", nil, err
	}
	return name, idField, payload, nil
}

// RewriteBulkID replaces the transaction id in an already-built bulk
// frame, preserving the topic, the ";bulk" suffix, and the raw
// payload byte-exact. Used by the Request Relay to restore a worker's
// internal id to the client's original id before forwarding.
func RewriteBulkID(raw []byte, newID string) ([]byte, error) {
	name, _, payload, err := ParseBulkFrame(raw)
	if err != nil {
		return nil, err
	}
	return BuildBulkFrame(name, newID, payload), nil
}

// BuildBroadcastFrame constructs a plain or bundle PUB frame:
// "<topic> <json>".
func BuildBroadcastFrame(topic string, jsonBody []byte) []byte {
	out := make([]byte, 0, len(topic)+1+len(jsonBody))
	out = append(out, topic...)
	out = append(out, ' ')
	out = append(out, jsonBody...)
	return out
}

// ParseBroadcastFrame splits a plain or bundle broadcast frame into
// its topic and JSON payload.
func ParseBroadcastFrame(raw []byte) (topic string, jsonBody []byte, err error) {
	space := bytes.IndexByte(raw, ' ')
	if space < 0 {
		return "", nil, fmt.Errorf("%w: broadcast frame missing payload separator", ErrBadFrame)
	}
	return string(raw[:space]), raw[space+1:], nil
}

// IsBundleTopic reports whether topic carries the bundle suffix.
func IsBundleTopic(topic string) bool {
	_, ok := strings.CutSuffix(topic, BundleSuffix)
	return ok
}
