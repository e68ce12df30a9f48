// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock interface parameter instead of calling
// time.Now, time.Sleep, or time.NewTicker directly. In production,
// Real() provides the standard library behavior. In tests, Fake()
// provides a deterministic clock that advances only when Advance is
// called.
//
// # Wiring Pattern
//
// Add a Clock field to structs that use time:
//
//	type Limiter struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	l := ratelimit.New(config, clock.Real())
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	l := ratelimit.New(config, c)
//	// ... start goroutines ...
//	c.WaitForWaiters(1)        // wait for a goroutine to block on the clock
//	c.Advance(2 * time.Second) // release it deterministically
package clock
