// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

// Package socketx implements the four message-socket roles potproxy
// needs over Unix domain sockets: a many-client request router and a
// many-subscriber publish broadcaster on the external side, and a
// duplex request endpoint plus a collect-only publish endpoint on the
// worker side. The worker-side endpoints are proxy-bound: the proxy
// creates the socket before spawning the worker and keeps listening
// across worker restarts, exactly as the worker process args are
// handed the already-bound endpoint paths.
//
// Every frame on every socket is length-prefixed: a 4-byte big-endian
// frame length followed by that many bytes of payload (frame.go). The
// payload itself is whatever internal/wire produces — a request line,
// a JSON response, or a two-part bulk/broadcast frame sent as two
// consecutive socketx frames on the same connection.
//
// The four roles emulate the request/reply and publish/subscribe
// socket patterns used by the original telemetry broker (ROUTER/DEALER
// for request/reply, PUB/SUB for broadcast) without depending on any
// message-queue library — none exists anywhere in this module's
// dependency corpus, so the framing and routing are implemented
// directly on top of net.Conn, in the accept-loop-plus-registry style
// of a Unix socket server.
package socketx
