// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bridge-foundation/bridge/lib/clock"
)

func TestCreateFileSanitizesPath(t *testing.T) {
	root := t.TempDir()
	workspace := NewWorkspace(root, true, clock.Fake(testStart), testLogger())

	result, err := workspace.CreateFile(`../weird\path?name.txt`, "payload")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if result.SanitizedPath != "weird/pathname.txt" {
		t.Errorf("SanitizedPath = %q, want %q", result.SanitizedPath, "weird/pathname.txt")
	}

	data, err := os.ReadFile(filepath.Join(root, "weird", "pathname.txt"))
	if err != nil {
		t.Fatalf("reading created file: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("content = %q, want %q", data, "payload")
	}

	if _, err := os.Stat(filepath.Join(root, "weird", "pathname.txt.meta.json")); err != nil {
		t.Errorf("sidecar missing: %v", err)
	}
}

func TestCreateFileRejectsEscape(t *testing.T) {
	// Sanitization disabled: the containment check alone must stop
	// the traversal.
	workspace := NewWorkspace(t.TempDir(), false, clock.Fake(testStart), testLogger())

	if _, err := workspace.CreateFile("../outside.txt", "nope"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("CreateFile(escape) = %v, want ErrInvalidPath", err)
	}
}

func TestCreateFileRequiresPath(t *testing.T) {
	workspace := NewWorkspace(t.TempDir(), true, clock.Fake(testStart), testLogger())

	if _, err := workspace.CreateFile("", "content"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("CreateFile(empty) = %v, want ErrInvalidPath", err)
	}
}

func TestApplyBundlePartialFailure(t *testing.T) {
	root := t.TempDir()
	workspace := NewWorkspace(root, true, clock.Fake(testStart), testLogger())

	result := workspace.ApplyBundle([]BundleEntry{
		{Path: "src/main.go", Content: "package main"},
		{Path: "", Content: "orphan"},
		{Path: "docs/readme.md", Content: "# notes"},
	}, "project")

	if len(result.Created) != 2 {
		t.Errorf("created = %d, want 2", len(result.Created))
	}
	if len(result.Errors) != 1 {
		t.Errorf("errors = %d, want 1", len(result.Errors))
	}
	if _, err := os.Stat(filepath.Join(root, "project", "src", "main.go")); err != nil {
		t.Errorf("bundle file missing: %v", err)
	}
}
