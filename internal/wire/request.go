// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the closed set of request kinds a client or worker may
// carry on a request frame. HASH is accepted as a parse-time synonym
// for ID (spec.md §9 Open Questions) and never appears as a Kind
// value once a frame has been parsed.
type Kind string

const (
	KindRead   Kind = "READ"
	KindWrite  Kind = "WRITE"
	KindID     Kind = "ID"
	KindConfig Kind = "CONFIG"
)

// Request is a parsed request frame, normalized from either the
// plain command-line grammar or the JSON grammar.
type Request struct {
	Kind Kind

	// Name is the element or store name argument. Empty for an
	// unfiltered ID request.
	Name string

	// Data is the raw JSON payload for a WRITE request's "data"
	// field. Nil for all other kinds.
	Data json.RawMessage

	// ID is the transaction id the client supplied, or empty if the
	// client omitted one. Callers that need an id unconditionally
	// (e.g. the Request Server's ACK) fall back to GenerateID.
	ID string
}

// jsonRequest is the wire JSON form of a request, accepted on every
// request-shaped socket and always used when potproxy forwards a
// request to a worker (the relay always serializes this form after
// rewriting the id).
type jsonRequest struct {
	Request string          `json:"request"`
	Name    string          `json:"name,omitempty"`
	ID      string          `json:"id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ParseRequest decodes a request frame in either grammar. JSON is
// detected by a leading '{' (after trimming leading whitespace);
// anything else is parsed as the command-line grammar.
func ParseRequest(raw []byte) (Request, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Request{}, fmt.Errorf("%w: empty request frame", ErrBadFrame)
	}
	if trimmed[0] == '{' {
		return parseJSONRequest(trimmed)
	}
	return parseLineRequest(trimmed)
}

func parseJSONRequest(raw []byte) (Request, error) {
	var jr jsonRequest
	if err := json.Unmarshal(raw, &jr); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	kind, err := normalizeKind(jr.Request)
	if err != nil {
		return Request{}, err
	}
	return Request{Kind: kind, Name: jr.Name, Data: jr.Data, ID: jr.ID}, nil
}

// parseLineRequest parses "<KIND> [argument]". READ/CONFIG/HASH take
// a plain name argument with an optional trailing id token
// ("READ <fullname> [id]"). WRITE takes a JSON object argument, which
// may itself carry an "id" field alongside "name" and "data". ID
// takes an optional store filter and an optional trailing id token.
func parseLineRequest(line []byte) (Request, error) {
	text := string(line)
	verb, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)

	kind, err := normalizeKind(verb)
	if err != nil {
		return Request{}, err
	}

	switch kind {
	case KindWrite:
		var body struct {
			Name string          `json:"name"`
			Data json.RawMessage `json:"data"`
			ID   string          `json:"id,omitempty"`
		}
		if rest == "" {
			return Request{}, fmt.Errorf("%w: WRITE requires a JSON argument", ErrBadFrame)
		}
		if err := json.Unmarshal([]byte(rest), &body); err != nil {
			return Request{}, &Error{Type: ErrTypeError, Text: fmt.Sprintf("malformed WRITE argument: %v", err)}
		}
		if body.Name == "" {
			return Request{}, &Error{Type: ErrKeyError, Text: "missing required field: name"}
		}
		return Request{Kind: KindWrite, Name: body.Name, Data: body.Data, ID: body.ID}, nil

	case KindRead, KindConfig:
		name, id := splitTrailingID(rest)
		if name == "" {
			return Request{}, &Error{Type: ErrKeyError, Text: "missing required field: name"}
		}
		return Request{Kind: kind, Name: name, ID: id}, nil

	case KindID:
		name, id := splitTrailingID(rest)
		return Request{Kind: KindID, Name: name, ID: id}, nil

	default:
		return Request{}, &Error{Type: ErrValueError, Text: fmt.Sprintf("unhandled request type: %s", verb)}
	}
}

// splitTrailingID splits "<name> [id]" into its name and optional
// trailing 8-hex id. If the second field is not a well-formed id, the
// whole remainder is treated as part of the name (names never contain
// spaces in practice, but this keeps the grammar permissive rather
// than rejecting an otherwise-valid request).
func splitTrailingID(rest string) (name, id string) {
	if rest == "" {
		return "", ""
	}
	name, maybeID, found := strings.Cut(rest, " ")
	if !found {
		return rest, ""
	}
	maybeID = strings.TrimSpace(maybeID)
	if _, err := ParseID(maybeID); err == nil {
		return name, maybeID
	}
	return rest, ""
}

func normalizeKind(verb string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(verb)) {
	case "READ":
		return KindRead, nil
	case "WRITE":
		return KindWrite, nil
	case "ID", "HASH":
		// HASH is an undocumented synonym for ID (spec.md §9); treated
		// identically at parse time.
		return KindID, nil
	case "CONFIG":
		return KindConfig, nil
	default:
		return "", &Error{Type: ErrValueError, Text: fmt.Sprintf("unhandled request type: %s", verb)}
	}
}

// EncodeForWorker serializes req as the JSON request form, with id
// overwritten to internalID. This is what the Request Relay sends on
// the worker request socket after remapping the transaction id.
func EncodeForWorker(req Request, internalID string) ([]byte, error) {
	jr := jsonRequest{
		Request: string(req.Kind),
		Name:    req.Name,
		ID:      internalID,
		Data:    req.Data,
	}
	return json.Marshal(jr)
}
