// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

// Package idalloc allocates the internal transaction ids potproxy
// substitutes for client-chosen ids before forwarding a request to a
// worker. One Allocator exists per Request Relay (one per backend
// store), so allocation never needs to be coordinated across stores.
package idalloc
