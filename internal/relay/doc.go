// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay implements the Publish Relay and Request Relay: the
// per-worker forwarding logic that sits between one backend worker's
// sockets and the proxy's external sockets.
//
// PublishRelay forwards every broadcast frame from a worker's publish
// connection to the external publish socket byte-exact, preserving
// PUB+B descriptor/bulk pairing.
//
// RequestRelay is the asymmetric heart of the system: it rewrites a
// client's chosen transaction id to an internally-allocated one before
// forwarding a request to the worker, restores the client's id on the
// way back, and serves internal (supervisor-issued) requests through
// the same worker connection via a completion future.
package relay
