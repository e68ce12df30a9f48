// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"sync"
	"time"

	"github.com/bridge-foundation/bridge/lib/clock"
)

// Default pacing parameters, shared by both bridge processes.
const (
	// DefaultBaseDelay is the minimum spacing between accepted
	// messages at backoff 1.0.
	DefaultBaseDelay = 1 * time.Second

	// DefaultMultiplier is applied to the backoff after each
	// violation (a message arriving before the required spacing).
	DefaultMultiplier = 2.0

	// DefaultCeiling caps the backoff multiplier.
	DefaultCeiling = 16.0
)

// Config holds limiter parameters. The zero value is not usable; use
// DefaultConfig for the standard bridge pacing.
type Config struct {
	// BaseDelay is the required spacing at backoff 1.0.
	BaseDelay time.Duration

	// Multiplier scales the backoff after each violation.
	Multiplier float64

	// Ceiling is the maximum backoff multiplier.
	Ceiling float64
}

// DefaultConfig returns the standard bridge pacing parameters.
func DefaultConfig() Config {
	return Config{
		BaseDelay:  DefaultBaseDelay,
		Multiplier: DefaultMultiplier,
		Ceiling:    DefaultCeiling,
	}
}

// Limiter paces message acceptance. Safe for concurrent use: request
// goroutines serialize on the internal mutex, so concurrent senders
// observe a consistent backoff progression.
type Limiter struct {
	config Config
	clock  clock.Clock

	mu          sync.Mutex
	backoff     float64
	lastMessage time.Time
}

// New creates a Limiter with the given configuration and clock.
func New(config Config, clk clock.Clock) *Limiter {
	return &Limiter{
		config:  config,
		clock:   clk,
		backoff: 1.0,
	}
}

// Acquire blocks until the required spacing since the previous
// acceptance has elapsed, then records now as the last acceptance
// time. A message arriving early sleeps out the difference and doubles
// the backoff (capped at the ceiling); a message arriving after the
// requirement resets the backoff to 1.0. Acquire always succeeds; it
// only delays.
func (l *Limiter) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	required := time.Duration(float64(l.config.BaseDelay) * l.backoff)
	elapsed := now.Sub(l.lastMessage)

	if elapsed < required {
		l.clock.Sleep(required - elapsed)
		l.backoff = min(l.backoff*l.config.Multiplier, l.config.Ceiling)
	} else {
		l.backoff = 1.0
	}

	l.lastMessage = l.clock.Now()
}

// Backoff returns the current backoff multiplier for metrics
// reporting.
func (l *Limiter) Backoff() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backoff
}

// Reset restores the limiter to its initial state (backoff 1.0, no
// recorded acceptance). Called when a new session starts.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backoff = 1.0
	l.lastMessage = time.Time{}
}
