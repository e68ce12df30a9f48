// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the message model shared by the bridge
// services: participants, roles, intents, decisions, the canonical
// message-file wire format, and the content validation policy.
//
// The wire format is a plain-text key-value layout consumed by both
// the peer service's file watcher and external file-based tooling, so
// it changes only with coordination across every consumer.
package schema
