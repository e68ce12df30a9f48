// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package statefile provides atomic JSON state file operations for
// durable service state that must survive process restarts, such as the
// bridge sequencer counter and approval policy.
//
// Files are written atomically (write to temporary file, fsync, rename)
// so readers never observe a partial or corrupt state file. The rename
// is the only visible state transition: a crash mid-write leaves either
// the previous file or the new one, never a mix.
package statefile
