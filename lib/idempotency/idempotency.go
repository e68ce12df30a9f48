// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package idempotency

import (
	"sort"
	"strconv"
	"sync"
)

// DefaultCapacity is the number of ids retained per sender.
const DefaultCapacity = 100

// Tracker is a bounded per-sender set of already-processed message
// identifiers. Safe for concurrent use.
type Tracker struct {
	capacity int

	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

// New creates a Tracker retaining up to capacity ids per sender.
// A non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		capacity: capacity,
		seen:     make(map[string]map[string]struct{}),
	}
}

// Seen reports whether the (sender, id) pair has already been
// recorded. An empty id is never a duplicate: messages without an
// external id are always treated as novel.
func (t *Tracker) Seen(sender, id string) bool {
	if id == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ids, exists := t.seen[sender]
	if !exists {
		return false
	}
	_, seen := ids[id]
	return seen
}

// Record adds the (sender, id) pair. When the sender's set exceeds the
// capacity, the numerically smallest ids are evicted so the most
// recent (largest) capacity ids remain.
func (t *Tracker) Record(sender, id string) {
	if id == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ids, exists := t.seen[sender]
	if !exists {
		ids = make(map[string]struct{})
		t.seen[sender] = ids
	}
	ids[id] = struct{}{}

	if len(ids) <= t.capacity {
		return
	}

	// Evict the oldest by numeric order. Ids that do not parse as
	// integers sort lexically after numeric ones, which is acceptable
	// under the documented monotonic-integer contract.
	ordered := make([]string, 0, len(ids))
	for existing := range ids {
		ordered = append(ordered, existing)
	}
	sort.Slice(ordered, func(i, j int) bool { return lessID(ordered[i], ordered[j]) })

	for _, evict := range ordered[:len(ordered)-t.capacity] {
		delete(ids, evict)
	}
}

// lessID orders ids numerically when both parse as integers, placing
// non-numeric ids after all numeric ones (lexical among themselves).
func lessID(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
