// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1. potproxy's
// main() calls this for an error returned from run(), before
// slog.SetDefault has necessarily been reached — there is no logger to
// report through yet, so this writes directly to stderr instead.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
