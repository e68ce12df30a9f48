// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit enforces a minimum spacing between accepted bridge
// messages with exponential backoff on violation.
//
// The limiter never rejects: Acquire blocks the calling goroutine until
// the required spacing has elapsed, then records the acceptance time.
// Traffic arriving faster than the current requirement is penalized by
// doubling the backoff multiplier (capped); traffic that has naturally
// slowed resets the multiplier to one with no penalty carried forward.
package ratelimit
