// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

// Package pending implements the Pending Table: the map from an
// internally-assigned transaction id to the bookkeeping a Request
// Relay needs to route that transaction's response back to its
// originator, whether an external client or the relay's own internal
// caller. One Table belongs to exactly one Request Relay.
package pending
