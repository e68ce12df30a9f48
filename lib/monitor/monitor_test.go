// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bridge-foundation/bridge/lib/clock"
)

func newTestMonitor() (*Monitor, *clock.FakeClock) {
	c := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	m := New(c)
	m.Reset()
	return m, c
}

func TestObserveCountsRepeats(t *testing.T) {
	m, _ := newTestMonitor()

	if got := m.Observe("plan the work"); got != 0 {
		t.Errorf("first Observe = %d, want 0", got)
	}
	if got := m.Observe("plan the work"); got != 1 {
		t.Errorf("second identical Observe = %d, want 1", got)
	}
	if got := m.Observe("plan the work"); got != 2 {
		t.Errorf("third identical Observe = %d, want 2", got)
	}
	if got := m.Observe("different content"); got != 0 {
		t.Errorf("Observe after content change = %d, want 0", got)
	}
}

func TestCheckLimitsTripsOnFifthIdenticalMessage(t *testing.T) {
	m, _ := newTestMonitor()

	for i := 1; i <= 4; i++ {
		m.Observe("same thing again")
		if err := m.CheckLimits(); err != nil {
			t.Fatalf("CheckLimits after message %d: %v, want nil", i, err)
		}
	}

	m.Observe("same thing again")
	err := m.CheckLimits()
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("CheckLimits after 5th identical message = %v, want ErrLimitExceeded", err)
	}
	if m.SessionActive() {
		t.Error("session still active after watchdog trip")
	}
}

func TestCheckLimitsTripsOnTurnCap(t *testing.T) {
	m, _ := newTestMonitor()

	for i := 0; i < MaxTurns; i++ {
		m.Observe(fmt.Sprintf("message number %d", i))
	}

	if err := m.CheckLimits(); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("CheckLimits at turn cap = %v, want ErrLimitExceeded", err)
	}
	if m.SessionActive() {
		t.Error("session still active after turn cap")
	}
}

func TestResetClearsCounters(t *testing.T) {
	m, _ := newTestMonitor()

	for i := 0; i < 5; i++ {
		m.Observe("looping content")
	}
	if err := m.CheckLimits(); err == nil {
		t.Fatal("CheckLimits = nil, want ErrLimitExceeded before Reset")
	}

	m.Reset()

	if !m.SessionActive() {
		t.Error("session inactive after Reset")
	}
	if err := m.CheckLimits(); err != nil {
		t.Errorf("CheckLimits after Reset = %v, want nil", err)
	}

	// The digest memory is cleared too: the first message after
	// Reset is never a repeat, even with identical content.
	if got := m.Observe("looping content"); got != 0 {
		t.Errorf("Observe after Reset = %d, want 0", got)
	}
}

func TestSnapshotRate(t *testing.T) {
	m, c := newTestMonitor()

	m.Observe("one")
	m.Observe("two")
	c.Advance(1 * time.Minute)

	snapshot := m.Snapshot()
	if snapshot.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", snapshot.MessageCount)
	}
	if snapshot.MessagesPerMinute != 2.0 {
		t.Errorf("MessagesPerMinute = %v, want 2.0", snapshot.MessagesPerMinute)
	}
	if snapshot.RepeatCount != 0 {
		t.Errorf("RepeatCount = %d, want 0", snapshot.RepeatCount)
	}
}
