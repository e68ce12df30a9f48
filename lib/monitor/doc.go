// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor tracks per-session message activity for the bridge's
// watchdog and metrics endpoints.
//
// The monitor owns the session counters: lifetime message count,
// consecutive identical-content repeats (detected by BLAKE3 content
// digest), session start time, and the session-active flag. The
// watchdog decision lives here too: CheckLimits flips the session
// inactive when the turn cap or the repeat cap is exceeded. It is a
// soft circuit breaker: the triggering message's side effects stand,
// and the process keeps running.
package monitor
