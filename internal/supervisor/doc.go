// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor implements the Worker Supervisor (C7): for one
// store, it creates the worker's private ephemeral socket directory,
// owns that worker's Publish Relay and Request Relay, spawns the
// worker process, and respawns it on exit with a fixed pause.
package supervisor
