// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"errors"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bridge-foundation/bridge/lib/clock"
)

// Session limits. When either is exceeded the watchdog flips the
// session inactive.
const (
	// MaxTurns caps the lifetime message count per session.
	MaxTurns = 100

	// MaxRepeat caps consecutive messages with identical content.
	MaxRepeat = 5
)

// ErrLimitExceeded is returned by CheckLimits when the session has hit
// the turn cap or the repeat cap. The triggering call's side effects
// stand; subsequent sends observe an inactive session.
var ErrLimitExceeded = errors.New("watchdog limit exceeded")

// Metrics is a point-in-time snapshot for the metrics endpoint.
type Metrics struct {
	MessageCount      int     `json:"message_count"`
	MessagesPerMinute float64 `json:"messages_per_minute"`
	RepeatCount       int     `json:"repeat_count"`
}

// Monitor tracks session activity. Safe for concurrent use.
type Monitor struct {
	clock clock.Clock

	mu            sync.Mutex
	startTime     time.Time
	messageCount  int
	repeatCount   int
	lastDigest    [32]byte
	haveDigest    bool
	sessionActive bool
}

// New creates a Monitor. The session starts inactive; Reset activates
// it.
func New(clk clock.Clock) *Monitor {
	return &Monitor{
		clock:     clk,
		startTime: clk.Now(),
	}
}

// Observe records an accepted message's content. Returns the updated
// consecutive-repeat count: incremented when the content digest
// matches the previous message's, reset to zero otherwise. Also
// advances the lifetime message count. Observe never rejects; it only
// feeds the watchdog.
func (m *Monitor) Observe(content string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messageCount++

	digest := blake3.Sum256([]byte(content))
	if m.haveDigest && digest == m.lastDigest {
		m.repeatCount++
	} else {
		m.repeatCount = 0
	}
	m.lastDigest = digest
	m.haveDigest = true

	return m.repeatCount
}

// CheckLimits reports whether the session has exceeded the turn cap or
// the repeat cap. On violation the session is flipped inactive and
// ErrLimitExceeded is returned; otherwise nil.
//
// Repeat counting is zero-based (the first message observes repeat 0),
// so the cap trips on the MaxRepeat-th consecutive identical message.
func (m *Monitor) CheckLimits() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.messageCount >= MaxTurns || m.repeatCount >= MaxRepeat-1 {
		m.sessionActive = false
		return ErrLimitExceeded
	}
	return nil
}

// Snapshot returns current metrics. The messages-per-minute rate uses
// the elapsed session time, floored at one second to avoid division
// blowups right after Reset.
func (m *Monitor) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := m.clock.Now().Sub(m.startTime)
	if elapsed < time.Second {
		elapsed = time.Second
	}

	return Metrics{
		MessageCount:      m.messageCount,
		MessagesPerMinute: float64(m.messageCount) / elapsed.Minutes(),
		RepeatCount:       m.repeatCount,
	}
}

// Reset clears all counters and marks the session active. Called when
// a new session starts.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.startTime = m.clock.Now()
	m.messageCount = 0
	m.repeatCount = 0
	m.haveDigest = false
	m.sessionActive = true
}

// SessionActive reports whether the session is currently active.
func (m *Monitor) SessionActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionActive
}

// SetSessionActive overrides the session-active flag. Used when
// restoring session state from disk at startup.
func (m *Monitor) SetSessionActive(active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionActive = active
}
