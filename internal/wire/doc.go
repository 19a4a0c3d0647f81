// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the POT broker wire protocol: request
// frames, response frames, broadcast frames, and the two-frame bulk
// extension.
//
// A request frame is either a plain-text command line (READ, WRITE,
// ID, CONFIG, HASH) or a JSON object carrying the same fields. Both
// forms are accepted on every request-shaped socket, matching the
// source behavior of accepting JSON requests on the worker-facing
// socket in addition to the plain command form clients use.
//
// A response frame is always a JSON object: {message, id, time,
// [name], [data], [error]}. A bulk response is two frames: the JSON
// descriptor followed by a second frame of the form
// "<name>;bulk <id-hex> <raw bytes>".
//
// A broadcast frame is "<topic> <json>" where topic is either a plain
// element name, an element name suffixed with ";bulk", or a bundle
// prefix suffixed with ";bundle".
package wire
