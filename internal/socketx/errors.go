// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

package socketx

import "errors"

// errNotConnected is returned by a send on a DuplexEndpoint that is
// currently between connections (the worker process is restarting or
// has not yet bound its socket).
var errNotConnected = errors.New("socketx: endpoint not connected")
