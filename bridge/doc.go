// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge implements the message-gating and delivery service
// run by both participants of an agent pair.
//
// One Service instance handles the full pipeline for a single
// participant: rate limiting, content validation, idempotency,
// approval gating, durable sequencing, audit logging, message-file
// delivery, and best-effort HTTP forwarding to the peer. The same
// code serves the controller and the executor; behavior that differs
// between the two (the approval gate applies to executor-bound
// traffic, the canned plan response is executor-only) is keyed off
// the configured identity rather than compiled into separate
// binaries.
package bridge
