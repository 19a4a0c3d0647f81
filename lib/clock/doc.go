// Copyright 2026 The Potproxy Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets code that schedules or timestamps things swap the
// real wall clock for a deterministic one in tests.
//
// Anything that would otherwise call time.Now, time.After,
// time.NewTicker, time.AfterFunc, or time.Sleep should instead take a
// Clock and call through it. Real() wraps the standard library for
// production use; Fake() returns a clock that only moves forward when
// Advance is called explicitly.
//
// # Wiring a component
//
// Give the struct a Clock field:
//
//	type Supervisor struct {
//	    clock clock.Clock
//	}
//
// Production constructs it with the real clock:
//
//	sup := &Supervisor{clock: clock.Real()}
//
// A test constructs it with a fake one and drives time by hand:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	sup := &Supervisor{clock: c}
//	// ... start the goroutine under test ...
//	c.WaitForTimers(1)          // block until it has registered a timer
//	c.Advance(5 * time.Second)  // fire it deterministically
//
// # Coordinating with a FakeClock
//
// Sleep, After, NewTicker, and AfterFunc on a FakeClock each register a
// waiter rather than actually blocking on wall time. A test that calls
// Advance before the goroutine under test has registered its waiter
// would advance past nothing and hang; WaitForTimers closes that race
// by blocking until the expected number of waiters exist.
package clock
