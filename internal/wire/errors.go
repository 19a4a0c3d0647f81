// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"errors"
)

// ErrBadFrame is returned (wrapped) when a frame is truncated, is not
// valid JSON where JSON is expected, is missing a required field, or
// carries an ill-formed transaction id. Invalid UTF-8 inside a JSON
// string is not rejected: encoding/json replaces it with U+FFFD.
var ErrBadFrame = errors.New("wire: bad frame")

// Canonical error symbols for the wire error taxonomy (spec.md §7).
// These strings are part of the wire contract and must not change.
const (
	ErrKeyError     = "KeyError"
	ErrValueError   = "ValueError"
	ErrTypeError    = "TypeError"
	ErrRuntimeError = "RuntimeError"
)

// Error is the wire-format error envelope carried in a response's
// "error" field: {type, text, [debug]}.
type Error struct {
	Type string `json:"type"`
	Text string `json:"text"`

	// Debug is an optional opaque pass-through. It is consumed by the
	// worker supervisor in the source implementation but is not part
	// of the documented wire contract; potproxy forwards it verbatim
	// without interpreting it.
	Debug json.RawMessage `json:"debug,omitempty"`
}

// Error implements the error interface so a *Error can be wrapped and
// returned from Go functions that produce a wire-visible failure.
func (e *Error) Error() string {
	return e.Type + ": " + e.Text
}

// KeyError builds a {type: "KeyError", text: text} wire error.
func KeyError(text string) *Error { return &Error{Type: ErrKeyError, Text: text} }

// ValueError builds a {type: "ValueError", text: text} wire error.
func ValueError(text string) *Error { return &Error{Type: ErrValueError, Text: text} }

// TypeError builds a {type: "TypeError", text: text} wire error.
func TypeError(text string) *Error { return &Error{Type: ErrTypeError, Text: text} }

// RuntimeError builds a {type: "RuntimeError", text: text} wire error.
func RuntimeError(text string) *Error { return &Error{Type: ErrRuntimeError, Text: text} }
