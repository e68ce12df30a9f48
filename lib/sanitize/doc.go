// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package sanitize normalizes agent-supplied file paths before they
// are joined to the workspace root.
//
// Agents emit paths copied from conversation content: they may contain
// diacritics, Windows-forbidden characters, reserved device names,
// traversal segments, or mixed separators. Sanitization reduces each
// path to a safe relative form; the caller must still verify that the
// joined result stays inside the workspace root (sanitization is
// defense in depth, not the containment check).
package sanitize
