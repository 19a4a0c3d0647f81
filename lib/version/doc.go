// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

// Package version holds the release identifiers potproxy binaries report
// through the -version flag.
//
// [Release], [CommitHash], [WorkingTreeDirty], and [BuiltAt] are plain
// strings with development defaults; a release build overwrites them
// with -ldflags "-X ...=...", e.g.:
//
//	go build -ldflags "-X github.com/potproxy/potproxy/lib/version.Release=1.2.0 \
//	  -X github.com/potproxy/potproxy/lib/version.CommitHash=$(git rev-parse --short HEAD)"
//
// [Info], [Full], [Short], and [Commit] format those values for display;
// callers never read the variables directly.
package version
