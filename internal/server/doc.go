// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the Request Server (C6): it owns the
// external request socket, parses each inbound frame, and either
// dispatches it to the owning store's Request Relay (READ/WRITE) or
// answers it locally from the Configuration Cache (ID/CONFIG).
package server
