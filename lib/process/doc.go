// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the one raw-I/O helper potproxy's command
// binaries need before their structured logger exists: reporting a
// fatal startup error to stderr and exiting. Everything after the
// logger is configured should log through it instead of calling fmt
// or os.Exit directly.
package process
