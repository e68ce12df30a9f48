// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package idempotency tracks externally supplied message identifiers
// so re-delivered messages can be dropped without side effects.
//
// The tracker keeps a bounded per-sender set of recently seen ids.
// When a sender's set exceeds the capacity, only the numerically
// largest ids are retained, assuming the producing side issues
// monotonic integer ids. Non-numeric or non-monotonic ids degrade the
// eviction heuristic (they sort lexically); this is a documented
// limitation, not silently corrected.
package idempotency
