// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"fmt"
)

// Message kinds for response and broadcast frames. MessageREPBulk and
// MessagePUBBulk mark a descriptor that is immediately followed, on
// the same connection, by one bulk continuation frame carrying the
// same transaction id (see BuildBulkFrame) — the receiver must read
// that second frame before considering the transaction delivered.
const (
	MessageACK     = "ACK"
	MessageREP     = "REP"
	MessageREPBulk = "REP+B"
	MessagePUB     = "PUB"
	MessagePUBBulk = "PUB+B"
)

// HasBulkFollowup reports whether message is a descriptor kind that is
// followed by a bulk continuation frame.
func HasBulkFollowup(message string) bool {
	return message == MessageREPBulk || message == MessagePUBBulk
}

// Response is a response frame: {message, id, time, [name], [data],
// [error]}. It is also the descriptor half of a REP+B / PUB+B pair —
// see HasBulkFollowup.
type Response struct {
	Message string          `json:"message"`
	ID      string          `json:"id"`
	Time    float64         `json:"time"`
	Name    string          `json:"name,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// ParseResponse decodes a response or broadcast descriptor frame.
// Unknown fields are ignored for forward compatibility (encoding/json
// already does this by default).
func ParseResponse(raw []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if resp.Message == "" {
		return nil, fmt.Errorf("%w: response missing required field: message", ErrBadFrame)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: response missing required field: id", ErrBadFrame)
	}
	if _, err := ParseID(resp.ID); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Encode serializes a response frame.
func (r *Response) Encode() ([]byte, error) {
	return json.Marshal(r)
}
